package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"goq/internal/config"
	"goq/internal/mcp"
	"goq/internal/session"
)

// runCommand dispatches a slash command. Unknown commands print usage
// instead of reaching the model.
func (a *App) runCommand(ctx context.Context, line string) {
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "/clear":
		// In-memory reset plus screen wipe. The on-disk recovery file stays
		// untouched until the next turn write.
		a.store.Reset(a.sess, systemPrompt)
		fmt.Fprint(a.out, "\033[2J\033[H")
		fmt.Fprintln(a.out, "session cleared")

	case "/recover":
		a.offerRecovery(ctx)

	case "/mcp-connect":
		if len(args) != 1 {
			fmt.Fprintln(a.out, "usage: /mcp-connect <server>")
			return
		}
		if err := a.mcpMgr.Connect(ctx, args[0]); err != nil {
			fmt.Fprintf(a.out, "error: %v\n", err)
			return
		}
		fmt.Fprintf(a.out, "connected to %s\n", args[0])

	case "/mcp-disconnect":
		if len(args) != 1 {
			fmt.Fprintln(a.out, "usage: /mcp-disconnect <server>")
			return
		}
		a.mcpMgr.Disconnect(args[0])
		fmt.Fprintf(a.out, "disconnected from %s\n", args[0])

	case "/mcp-tools":
		tools := a.mcpMgr.Tools()
		if len(tools) == 0 {
			fmt.Fprintln(a.out, "no tools discovered (connect a server first)")
			return
		}
		for _, t := range tools {
			fmt.Fprintln(a.out, t)
		}

	case "/mcp-servers":
		servers := a.mcpMgr.Servers()
		if len(servers) == 0 {
			fmt.Fprintln(a.out, "no servers configured (use /mcp-add)")
			return
		}
		for _, s := range servers {
			fmt.Fprintln(a.out, s)
		}

	case "/mcp-add":
		if len(args) < 2 {
			fmt.Fprintln(a.out, "usage: /mcp-add <name> <command> [args...]")
			return
		}
		a.mcpMgr.AddServer(mcp.ServerConfig{Name: args[0], Command: args[1], Args: args[2:]})
		if err := a.saveRegistry(); err != nil {
			fmt.Fprintf(a.out, "error: %v\n", err)
			return
		}
		fmt.Fprintf(a.out, "added %s (connect with /mcp-connect %s)\n", args[0], args[0])

	case "/mcp-remove":
		if len(args) != 1 {
			fmt.Fprintln(a.out, "usage: /mcp-remove <name>")
			return
		}
		a.mcpMgr.RemoveServer(args[0])
		if err := a.saveRegistry(); err != nil {
			fmt.Fprintf(a.out, "error: %v\n", err)
			return
		}
		fmt.Fprintf(a.out, "removed %s\n", args[0])

	case "/mcp-fix":
		if len(a.registryErrs) == 0 {
			fmt.Fprintln(a.out, "no broken registry entries")
			return
		}
		fmt.Fprintf(a.out, "broken entries in %s:\n", a.cfg.MCP.RegistryPath)
		for _, e := range a.registryErrs {
			fmt.Fprintf(a.out, "  %s: %s\n", e.Server, e.Hint)
		}
		fmt.Fprintln(a.out, "edit the file, or replace an entry with /mcp-add <name> <command> [args...]")

	case "/help":
		fmt.Fprintln(a.out, "commands: /clear /recover /mcp-connect /mcp-disconnect /mcp-tools /mcp-servers /mcp-add /mcp-remove /mcp-fix /exit")

	default:
		fmt.Fprintf(a.out, "unknown command %s (try /help)\n", cmd)
	}
}

func (a *App) saveRegistry() error {
	return config.SaveRegistry(a.cfg.MCP.RegistryPath, a.mcpMgr.Configs())
}

// offerRecovery loads the previous session, previews its tail, and asks
// before restoring. Declining leaves the file on disk untouched; corruption
// means a fresh session with a warning, never a startup failure.
func (a *App) offerRecovery(ctx context.Context) {
	prev, err := a.store.Load()
	if err != nil {
		fmt.Fprintf(a.out, "warning: %v; starting fresh\n", err)
		return
	}
	if prev == nil || len(prev.Turns) == 0 {
		fmt.Fprintln(a.out, "no previous session to recover")
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "previous session (%d turns):\n", len(prev.Turns))
	for _, t := range session.Tail(prev, a.cfg.Session.RecoveryTail) {
		content := t.Content
		if len(content) > 200 {
			content = content[:197] + "..."
		}
		fmt.Fprintf(&b, "  [%s] %s: %s\n", t.Timestamp.Format(time.Kitchen), t.Role, strings.ReplaceAll(content, "\n", " "))
	}
	a.prompter.Show(b.String())

	ch, err := a.prompter.Choose(ctx, "restore this session? [Y]es [N]o: ", "YN")
	if err != nil || ch != 'Y' {
		fmt.Fprintln(a.out, "starting fresh")
		return
	}
	a.sess = prev
	fmt.Fprintln(a.out, "session restored")
}
