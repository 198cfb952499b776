package chat

import "strings"

const commandPrefix = "/"

// Command names.
const (
	cmdStart    = "start"
	cmdHelp     = "help"
	cmdList     = "list"
	cmdSearch   = "search"
	cmdEdit     = "edit"
	cmdAdd      = "add"
	cmdCancel   = "cancel"
	cmdRenewals = "renewals"
	cmdCheck    = "check"
	cmdSummary  = "summary"
	cmdBackup   = "backup"
)

var (
	cancelWords  = set("cancel", "cancelar", "/cancel")
	confirmWords = set("yes", "y", "sim", "s", "ok", "confirm", "confirmar")
	rejectWords  = set("no", "n", "não", "nao")
	editWords    = set("edit", "editar", "/edit")
	skipWords    = set("skip", "pular")
	keepWords    = set("", "-", "skip", "pular", "keep", "manter")
)

func set(words ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

// normalize lowercases and strips surrounding spaces and trailing punctuation.
func normalize(text string) string {
	return strings.TrimRight(strings.ToLower(strings.TrimSpace(text)), ".!?")
}

func matches(words map[string]struct{}, text string) bool {
	_, ok := words[normalize(text)]
	return ok
}

func isCancel(text string) bool {
	if matches(cancelWords, text) {
		return true
	}
	cmd, ok := parseCommand(text)
	return ok && cmd.Name == cmdCancel
}

type command struct {
	Name string
	Args string
}

// parseCommand splits "/name@bot args" into its parts.
func parseCommand(text string) (command, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, commandPrefix) || len(text) == len(commandPrefix) {
		return command{}, false
	}

	head, args, _ := strings.Cut(text[len(commandPrefix):], " ")
	name, _, _ := strings.Cut(head, "@")

	return command{
		Name: strings.ToLower(name),
		Args: strings.TrimSpace(args),
	}, true
}

type intent int

const (
	intentUnknown intent = iota
	intentConfirm
	intentCancel
	intentEdit
)

// confirmationIntent classifies replies to a pending confirmation.
func confirmationIntent(text string) intent {
	switch {
	case matches(confirmWords, text):
		return intentConfirm
	case matches(rejectWords, text) || isCancel(text):
		return intentCancel
	case matches(editWords, text):
		return intentEdit
	}
	return intentUnknown
}
