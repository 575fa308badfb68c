package main

import (
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/bcmpchat/bcmp/pkg/client"
)

func main() {
	addr := flag.String("addr", "", "Server address (host or host:port)")
	nick := flag.String("nick", "", "Nickname to join with")
	flag.Parse()

	if *addr == "" || *nick == "" {
		fmt.Fprintln(os.Stderr, "Usage: bcmp-client -addr <host[:port]> -nick <nickname>")
		os.Exit(1)
	}

	sess, err := client.Connect(*addr, *nick)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error on connecting: %v\n", err)
		os.Exit(1)
	}

	net := newNetwork(sess)
	p := tea.NewProgram(initialModel(net, *nick), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	net.Close()
}
