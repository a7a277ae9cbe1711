package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/agbru/taskmaster/internal/ui"
)

// FlagCompletion describes a command-line flag for completion scripts. Every
// generator reads flagRegistry, so a new flag only needs one entry there.
type FlagCompletion struct {
	Long      string   // flag name without dashes (e.g., "interval")
	Short     string   // single-letter alias without dash
	Help      string   // description text
	Values    []string // suggested values (nil = boolean or free-form)
	ValueName string   // label for the value in zsh (e.g., "duration")
	IsFile    bool     // true if the flag takes a file path
	BashGroup string   // flags with the same non-empty BashGroup share a bash case entry
}

var durationValues = []string{"1s", "2s", "5s", "10s", "30s", "1m", "5m", "1h", "24h"}

var flagRegistry = []FlagCompletion{
	{Long: "help", Short: "h", Help: "Show help message"},
	{Long: "version", Help: "Show version information"},
	{Long: "interval", Help: "Pause between refresh cycles", ValueName: "duration", BashGroup: "duration"},
	{Long: "retry-delay", Help: "Pause after a failed refresh", ValueName: "duration", BashGroup: "duration"},
	{Long: "top", Help: "Processes kept in the retention set", Values: []string{"10", "25", "50", "100"}, ValueName: "count"},
	{Long: "display", Help: "Processes shown", Values: []string{"5", "10", "20"}, ValueName: "count"},
	{Long: "db", Help: "SQLite snapshot database", IsFile: true, ValueName: "file"},
	{Long: "no-db", Help: "Disable snapshot storage"},
	{Long: "snapshot-interval", Help: "Interval between snapshot writes", ValueName: "duration", BashGroup: "duration"},
	{Long: "cleanup-interval", Help: "Interval between storage cleanups", ValueName: "duration", BashGroup: "duration"},
	{Long: "retention-days", Help: "Days of snapshots kept", Values: []string{"1", "7", "30"}, ValueName: "days"},
	{Long: "disk", Help: "Mount point reported as disk usage", ValueName: "path"},
	{Long: "listen", Help: "HTTP listen address", Values: []string{"127.0.0.1:8080", ":8080"}, ValueName: "addr"},
	{Long: "allow-origin", Help: "Browser origins allowed to use the HTTP API", ValueName: "origins"},
	{Long: "tui", Help: "Interactive dashboard", Values: []string{"auto", "on", "off"}, ValueName: "mode"},
	{Long: "once", Help: "Print a single table and exit"},
	{Long: "output", Help: "Save the once table to a file", IsFile: true, ValueName: "file"},
	{Long: "repl", Help: "Interactive command prompt"},
	{Long: "no-color", Help: "Disable colored output"},
	{Long: "theme", Help: "Color theme", Values: ui.ThemeNames(), ValueName: "name"},
	{Long: "log-level", Help: "Log level", Values: []string{"debug", "info", "warn", "error", "disabled"}, ValueName: "level"},
	{Long: "log-file", Help: "Write logs to this file", IsFile: true, ValueName: "file"},
	{Long: "config", Help: "YAML configuration file", IsFile: true, ValueName: "file"},
	{Long: "completion", Help: "Generate completion script", Values: []string{"bash", "zsh", "fish", "powershell"}, ValueName: "shell"},
}

// bashGroupValues holds the values completed for grouped flags.
var bashGroupValues = map[string][]string{
	"duration": durationValues,
}

// GenerateCompletion writes a completion script for shell ("bash", "zsh",
// "fish", "powershell" or "ps").
func GenerateCompletion(out io.Writer, program, shell string) error {
	switch shell {
	case "bash":
		return generateBashCompletion(out, program)
	case "zsh":
		return generateZshCompletion(out, program)
	case "fish":
		return generateFishCompletion(out, program)
	case "powershell", "ps":
		return generatePowerShellCompletion(out, program)
	default:
		return fmt.Errorf("unsupported shell: %s (accepted values: bash, zsh, fish, powershell)", shell)
	}
}

func flagValues(f FlagCompletion) []string {
	if f.BashGroup != "" {
		return bashGroupValues[f.BashGroup]
	}
	return f.Values
}

func generateBashCompletion(out io.Writer, program string) error {
	var opts []string
	for _, f := range flagRegistry {
		opts = append(opts, "--"+f.Long)
		if f.Short != "" {
			opts = append(opts, "-"+f.Short)
		}
	}

	type caseEntry struct {
		patterns []string
		body     string
	}
	var cases []caseEntry

	var filePatterns []string
	for _, f := range flagRegistry {
		if f.IsFile {
			filePatterns = append(filePatterns, "--"+f.Long, "-"+f.Long)
		}
	}
	if len(filePatterns) > 0 {
		cases = append(cases, caseEntry{
			patterns: filePatterns,
			body:     `COMPREPLY=( $(compgen -f -- "${cur}") )`,
		})
	}

	for _, f := range flagRegistry {
		if f.BashGroup == "" && len(f.Values) > 0 {
			cases = append(cases, caseEntry{
				patterns: []string{"--" + f.Long, "-" + f.Long},
				body:     fmt.Sprintf(`COMPREPLY=( $(compgen -W "%s" -- "${cur}") )`, strings.Join(f.Values, " ")),
			})
		}
	}

	seen := map[string]bool{}
	for _, f := range flagRegistry {
		if f.BashGroup == "" || seen[f.BashGroup] {
			continue
		}
		seen[f.BashGroup] = true
		var patterns []string
		for _, gf := range flagRegistry {
			if gf.BashGroup == f.BashGroup {
				patterns = append(patterns, "--"+gf.Long, "-"+gf.Long)
			}
		}
		cases = append(cases, caseEntry{
			patterns: patterns,
			body:     fmt.Sprintf(`COMPREPLY=( $(compgen -W "%s" -- "${cur}") )`, strings.Join(bashGroupValues[f.BashGroup], " ")),
		})
	}

	var caseBody strings.Builder
	for _, c := range cases {
		caseBody.WriteString("        ")
		caseBody.WriteString(strings.Join(c.patterns, "|"))
		caseBody.WriteString(")\n            ")
		caseBody.WriteString(c.body)
		caseBody.WriteString("\n            return 0\n            ;;\n")
	}

	fn := "_" + shellIdent(program) + "_completions"
	script := fmt.Sprintf(`# Bash completion script for %[1]s
# Add this to your ~/.bashrc or ~/.bash_completion

%[2]s() {
    local cur prev opts
    COMPREPLY=()
    cur="${COMP_WORDS[COMP_CWORD]}"
    prev="${COMP_WORDS[COMP_CWORD-1]}"

    opts="%[3]s"

    case "${prev}" in
%[4]s    esac

    if [[ "${cur}" == -* ]]; then
        COMPREPLY=( $(compgen -W "${opts}" -- "${cur}") )
        return 0
    fi
}

complete -F %[2]s %[1]s
`, program, fn, strings.Join(opts, " "), caseBody.String())

	if _, err := fmt.Fprint(out, script); err != nil {
		return fmt.Errorf("completion bash generation failed: %w", err)
	}
	return nil
}

func generateZshCompletion(out io.Writer, program string) error {
	var args []string
	for _, f := range flagRegistry {
		args = append(args, zshArgEntry(f))
	}
	fn := "_" + shellIdent(program)
	script := fmt.Sprintf(`#compdef %[1]s

# Zsh completion script for %[1]s
# Place this file in a directory of your $fpath

%[2]s() {
    _arguments -s \
%[3]s
}

%[2]s "$@"
`, program, fn, strings.Join(args, " \\\n"))

	if _, err := fmt.Fprint(out, script); err != nil {
		return fmt.Errorf("completion zsh generation failed: %w", err)
	}
	return nil
}

func zshArgEntry(f FlagCompletion) string {
	valueSuffix := ""
	switch vals := flagValues(f); {
	case f.IsFile:
		valueSuffix = fmt.Sprintf(":%s:_files", f.ValueName)
	case len(vals) > 0:
		valueSuffix = fmt.Sprintf(":%s:(%s)", f.ValueName, strings.Join(vals, " "))
	case f.ValueName != "":
		valueSuffix = fmt.Sprintf(":%s:", f.ValueName)
	}
	if f.Short != "" {
		return fmt.Sprintf("        '(-%s --%s)'{-%s,--%s}'[%s]%s'",
			f.Short, f.Long, f.Short, f.Long, f.Help, valueSuffix)
	}
	return fmt.Sprintf("        '--%s[%s]%s'", f.Long, f.Help, valueSuffix)
}

func generateFishCompletion(out io.Writer, program string) error {
	lines := []string{
		"# Fish completion script for " + program,
		fmt.Sprintf("# Add this to ~/.config/fish/completions/%s.fish", program),
		"",
		"complete -c " + program + " -f",
		"",
	}
	for _, f := range flagRegistry {
		lines = append(lines, fishCompleteLine(program, f))
	}
	lines = append(lines, "")

	if _, err := fmt.Fprint(out, strings.Join(lines, "\n")); err != nil {
		return fmt.Errorf("completion fish generation failed: %w", err)
	}
	return nil
}

func fishCompleteLine(program string, f FlagCompletion) string {
	parts := []string{"complete -c " + program}
	if f.Short != "" {
		parts = append(parts, "-s "+f.Short)
	}
	parts = append(parts, "-l "+f.Long, fmt.Sprintf("-d '%s'", f.Help))
	switch vals := flagValues(f); {
	case f.IsFile:
		parts = append(parts, "-rF")
	case len(vals) > 0:
		parts = append(parts, fmt.Sprintf("-xa '%s'", strings.Join(vals, " ")))
	case f.ValueName != "":
		parts = append(parts, "-x")
	}
	return strings.Join(parts, " ")
}

func generatePowerShellCompletion(out io.Writer, program string) error {
	var options []string
	for _, f := range flagRegistry {
		if f.Short != "" {
			options = append(options, fmt.Sprintf("        @{Name = '-%s'; Description = '%s' }", f.Short, f.Help))
		}
		options = append(options, fmt.Sprintf("        @{Name = '--%s'; Description = '%s' }", f.Long, f.Help))
	}

	var switches []string
	for _, f := range flagRegistry {
		vals := flagValues(f)
		if f.IsFile || len(vals) == 0 {
			continue
		}
		quoted := make([]string, len(vals))
		for i, v := range vals {
			quoted[i] = "'" + v + "'"
		}
		switches = append(switches, fmt.Sprintf(`        '--%s' {
            @(%s) | Where-Object { $_ -like "$wordToComplete*" } | ForEach-Object {
                [System.Management.Automation.CompletionResult]::new($_, $_, 'ParameterValue', $_)
            }
            return
        }`, f.Long, strings.Join(quoted, ", ")))
	}

	script := fmt.Sprintf(`# PowerShell completion script for %[1]s
# Add this to your $PROFILE

Register-ArgumentCompleter -CommandName '%[1]s' -Native -ScriptBlock {
    param($wordToComplete, $commandAst, $cursorPosition)

    $options = @(
%[2]s
    )

    $elements = $commandAst.CommandElements
    $prevElement = if ($elements.Count -gt 2) { $elements[-2].ToString() } else { '' }

    switch ($prevElement) {
%[3]s
    }

    $options | Where-Object { $_.Name -like "$wordToComplete*" } | ForEach-Object {
        [System.Management.Automation.CompletionResult]::new($_.Name, $_.Name, 'ParameterName', $_.Description)
    }
}
`, program, strings.Join(options, "\n"), strings.Join(switches, "\n"))

	_, err := fmt.Fprint(out, script)
	return err
}

// shellIdent turns a program name into a valid shell function name.
func shellIdent(program string) string {
	return strings.Map(func(r rune) rune {
		if r == '-' || r == '.' {
			return '_'
		}
		return r
	}, program)
}
