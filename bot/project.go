package bot

import (
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/m4xw311/codexgram/store"
)

const projectHelpText = `Project commands:
/project - List known projects
/project use <n|name> - Select a project for this chat
/project clear - Deselect the current project
/project roots - List scan roots
/project addroot <path> - Register a directory to scan
/project rmroot <path> - Unregister a directory
/project rescan - Re-discover projects under all roots`

func (b *Bot) handleProject(msg *tgbotapi.Message, args string) {
	sub, rest := splitArg(args)
	switch sub {
	case "", "list":
		b.replyProjectList(msg)
	case "use":
		b.handleProjectUse(msg, rest)
	case "clear":
		if err := b.store.SetCurrentProject(msg.Chat.ID, ""); err != nil {
			b.reply(msg, "Error: "+err.Error())
			return
		}
		b.reply(msg, "Project deselected; using the default context.")
	case "roots":
		roots := b.store.ListRoots()
		if len(roots) == 0 {
			b.reply(msg, "No roots registered. Add one with /project addroot <path>.")
			return
		}
		b.reply(msg, "Roots:\n"+strings.Join(roots, "\n"))
	case "addroot":
		b.handleAddRoot(msg, rest)
	case "rmroot":
		b.handleRemoveRoot(msg, rest)
	case "rescan":
		count, err := b.store.Rescan()
		if err != nil {
			b.reply(msg, "Error: "+err.Error())
			return
		}
		b.reply(msg, fmt.Sprintf("Rescan complete: %d project(s).", count))
	case "help":
		b.reply(msg, projectHelpText)
	default:
		b.reply(msg, "Unknown project command. "+projectHelpText)
	}
}

func (b *Bot) replyProjectList(msg *tgbotapi.Message) {
	projects := b.store.ListProjects()
	if len(projects) == 0 {
		b.reply(msg, "No projects found. Add a root with /project addroot <path>.")
		return
	}
	current := b.store.GetCurrentProject(msg.Chat.ID)
	b.reply(msg, formatProjectList(projects, current))
}

func formatProjectList(projects []store.Project, current string) string {
	var sb strings.Builder
	sb.WriteString("Projects:\n")
	for i, p := range projects {
		marker := ""
		if p.Path == current {
			marker = " (current)"
		}
		fmt.Fprintf(&sb, "%d. %s - %s%s\n", i+1, p.Name, p.Path, marker)
	}
	return sb.String()
}

func (b *Bot) handleProjectUse(msg *tgbotapi.Message, arg string) {
	if arg == "" {
		b.reply(msg, "Usage: /project use <n|name>")
		return
	}
	project, ok := b.resolveProject(arg)
	if !ok {
		b.reply(msg, fmt.Sprintf("No project matches %q. See /project for the list.", arg))
		return
	}
	if err := b.store.SetCurrentProject(msg.Chat.ID, project.Path); err != nil {
		b.reply(msg, "Error: "+err.Error())
		return
	}
	b.reply(msg, fmt.Sprintf("Now working in %s (%s).", project.Name, project.Path))
}

// resolveProject accepts a 1-based list index, an exact path, or a project
// name (first match in display order).
func (b *Bot) resolveProject(arg string) (store.Project, bool) {
	projects := b.store.ListProjects()
	if n, err := strconv.Atoi(arg); err == nil {
		if n >= 1 && n <= len(projects) {
			return projects[n-1], true
		}
		return store.Project{}, false
	}
	if p, ok := b.store.GetProject(arg); ok {
		return p, true
	}
	for _, p := range projects {
		if strings.EqualFold(p.Name, arg) {
			return p, true
		}
	}
	return store.Project{}, false
}

func (b *Bot) handleAddRoot(msg *tgbotapi.Message, arg string) {
	if arg == "" {
		b.reply(msg, "Usage: /project addroot <path>")
		return
	}
	added, normalized, err := b.store.AddRoot(arg)
	if err != nil {
		b.reply(msg, "Error: "+err.Error())
		return
	}
	if !added {
		b.reply(msg, fmt.Sprintf("Root already registered: %s", normalized))
		return
	}
	b.reply(msg, fmt.Sprintf("Root added: %s (%d project(s) known).", normalized, len(b.store.ListProjects())))
}

func (b *Bot) handleRemoveRoot(msg *tgbotapi.Message, arg string) {
	if arg == "" {
		b.reply(msg, "Usage: /project rmroot <path>")
		return
	}
	removed, err := b.store.RemoveRoot(arg)
	if err != nil {
		b.reply(msg, "Error: "+err.Error())
		return
	}
	if !removed {
		b.reply(msg, "That path is not a registered root.")
		return
	}
	b.reply(msg, "Root removed.")
}

func splitArg(s string) (first, rest string) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ""
	}
	parts := strings.SplitN(s, " ", 2)
	if len(parts) == 1 {
		return parts[0], ""
	}
	return parts[0], strings.TrimSpace(parts[1])
}
