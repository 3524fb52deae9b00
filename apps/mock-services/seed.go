package main

import "github.com/tilsley/snapsync/pkg/fakeapi"

const (
	seedOwner = "acme"
	seedRepo  = "docs"
	seedRef   = "main"
)

// seedFiles is a small docs tree with nested directories, a non-UTF-8 file
// and a log file the default excludes drop.
var seedFiles = map[string][]byte{
	"README.md":                   []byte("# Acme docs\n\nStart with guides/getting-started.md.\n"),
	"guides/getting-started.md":   []byte("# Getting started\n\nInstall the CLI, then run `acme init`.\n"),
	"guides/advanced/tuning.md":   []byte("# Tuning\n\nRaise worker counts before raising memory limits.\n"),
	"guides/advanced/glossary.md": []byte("Café: a place. Crème brûlée: a dessert. Déjà vu: a feeling.\n"),
	"legacy/notes-latin1.txt":     {'C', 'a', 'f', 0xe9, ' ', 'n', 'o', 't', 'e', 's', '\n'},
	"reference/api.md":            []byte("# API\n\nGET /widgets lists widgets.\n"),
	"build.log":                   []byte("2026-01-01 build ok\n"),
}

func seed(gh *fakeapi.GitHub) {
	for path, content := range seedFiles {
		gh.Seed(seedOwner, seedRepo, seedRef, path, content)
	}
}
