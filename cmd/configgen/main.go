package main

import (
	"flag"
	"log"

	"github.com/danmuck/purity/internal/config"
	"github.com/danmuck/purity/internal/patch"
)

func main() {
	kind := flag.String("kind", "purity", "config kind: purity|patch")
	output := flag.String("output", "", "output path for config template")
	validate := flag.Bool("validate", false, "validate an existing config file")
	input := flag.String("input", "", "config path for validation (defaults to per-kind cmd path)")
	force := flag.Bool("force", false, "overwrite existing config file")
	flag.Parse()

	if *validate {
		path := *input
		if path == "" {
			path = defaultPath(*kind)
		}

		switch *kind {
		case "purity":
			if _, err := config.LoadPurityConfig(path); err != nil {
				log.Fatal(err)
			}
		case "patch":
			seq, err := patch.ReadFile(path)
			if err != nil {
				log.Fatal(err)
			}
			log.Printf("%d messages", len(seq))
		default:
			log.Fatalf("unknown kind: %s", *kind)
		}
		log.Printf("Validated %s config at %s", *kind, path)
		return
	}

	target := *output
	if target == "" {
		target = defaultPath(*kind)
	}

	if err := config.WriteTemplate(target, *kind, *force); err != nil {
		log.Fatal(err)
	}
	log.Printf("Wrote %s config template to %s", *kind, target)
}

func defaultPath(kind string) string {
	switch kind {
	case "purity":
		return "cmd/purityctl/config.toml"
	case "patch":
		return "cmd/purityctl/patch.fudi"
	default:
		log.Fatalf("unknown kind: %s", kind)
		return ""
	}
}
