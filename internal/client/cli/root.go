package cli

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strings"
)

func (a *App) getStatus() string {
	s := a.state.String()
	if a.Mode != "" {
		s = s + " " + string(a.Mode)
	}
	return fmt.Sprintf("(%s)", s)
}

func (a *App) Root(ctx context.Context) {

	log.Println("Welcome to SignOn CLI (type 'help' for commands)")
	scanner := bufio.NewScanner(os.Stdin)

	if err := a.sessions.Initialize(ctx); err != nil {
		log.Printf("Failed to restore session: %s", err.Error())
		return
	}
	if state, ok := a.sessions.Current(); ok {
		a.state = state
	}

	go a.StartStateWatcher(ctx)
	go a.StartOnlineStatusWatcher(ctx, a.config.OnlineCheckInterval)

	for {
		fmt.Printf("signon %s> ", a.getStatus())
		if !scanner.Scan() {
			break
		}
		line := scanner.Text()
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}

		cmd := parts[0]
		args := parts[1:]

		switch cmd {
		case "help":
			switch {
			case a.isSignedIn():
				fmt.Println("Available commands: creds, register, remove <id>, clearcreds, refresh, whoami, signout, exit")
			case a.isSigningIn():
				fmt.Println("Available commands: password, passkey, cancel, exit")
			default:
				fmt.Println("Available commands: username <name>, exit")
			}

		case "username":
			name := ""
			if len(args) > 0 {
				name = args[0]
			}
			a.submitUsername(ctx, name)
		case "password":
			a.submitPassword(ctx)
		case "passkey":
			a.signInWithPasskey(ctx)
		case "cancel", "signout", "logout":
			a.signOut(ctx)
		case "creds", "list":
			a.listCredentials(ctx)
		case "register":
			a.registerCredential(ctx)
		case "remove":
			if len(args) == 0 {
				fmt.Println("Usage: remove <id>")
				continue
			}
			a.removeCredential(ctx, args[0])
		case "clearcreds":
			a.clearCredentials(ctx)
		case "refresh":
			a.refreshCredentials(ctx)
		case "whoami":
			a.whoAmI(ctx)
		case "exit", "quit":
			fmt.Println("Bye!")
			return
		default:
			fmt.Println("Unknown command:", cmd)
		}
	}

}
