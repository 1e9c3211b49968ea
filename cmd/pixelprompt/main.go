package main

import (
	"fmt"
	"os"
)

// version is set at build time via ldflags.
var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	loadDotEnv()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe()
	case "seed":
		err = runSeed()
	case "grant-admin":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: pixelprompt grant-admin <uid>")
			os.Exit(1)
		}
		err = runGrantAdmin(os.Args[2])
	case "token":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: pixelprompt token <uid> [admin]")
			os.Exit(1)
		}
		err = runToken(os.Args[2], len(os.Args) > 3 && os.Args[3] == "admin")
	case "version":
		fmt.Printf("pixelprompt %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`pixelprompt - An AI image prompt gallery built with Go, Echo, and templ

Usage:
  pixelprompt <command> [arguments]

Commands:
  serve              Start the web server
  seed               Write the demo catalog to the database
  grant-admin <uid>  Add a user to the admin allow-list
  token <uid> [admin]
                     Print a one-hour identity token signed with AUTH_SECRET
  version            Print the pixelprompt version
  help               Show this help message

Environment:
  SESSION_SECRET     Required for serve
  SITE_NAME, SITE_URL, SITE_DESCRIPTION, ADDR
  DATABASE_PATH, UPLOAD_DIR, REDIS_URL, ALLOWED_ORIGINS
  AUTH_SECRET, AUTH_ISSUER, AUTH_AUDIENCE, LOGIN_URL
  COOKIE_SECURE, LOG_LEVEL

Settings are also read from .env.local and .env; the process environment wins.`)
}
