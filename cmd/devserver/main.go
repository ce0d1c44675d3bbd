package main

import (
	"context"
	"flag"
	"os"

	"github.com/vmarchenko/signon/internal/buildinfo"
	"github.com/vmarchenko/signon/internal/devserver"
)

func main() {

	buildinfo.PrintBuildData(os.Stdout)

	addr := flag.String("a", "127.0.0.1:8080", "address and port to listen on")
	secret := flag.String("k", "", "token signing secret (random when empty)")
	demoUser := flag.String("u", "demo", "demo account username")
	demoPassword := flag.String("p", "demo", "demo account password")
	flag.Parse()

	app := devserver.NewApp(*addr, []byte(*secret))
	if *demoUser != "" {
		app.Seed(*demoUser, []byte(*demoPassword))
	}

	app.Run(context.Background())

}
