package main

import (
	"flag"
	"log"

	"github.com/dkrutz/radiolink/internal/config"
)

func main() {
	output := flag.String("output", "", "output path for config template")
	validate := flag.Bool("validate", false, "validate an existing config file")
	input := flag.String("input", "", "config path for validation")
	force := flag.Bool("force", false, "overwrite existing config file")
	flag.Parse()

	if *validate {
		path := *input
		if path == "" {
			path = "cmd/radiolinkd/config.toml"
		}
		if _, err := config.Load(path); err != nil {
			log.Fatal(err)
		}
		log.Printf("Validated radiolinkd config at %s", path)
		return
	}

	target := *output
	if target == "" {
		target = "cmd/radiolinkd/config.toml"
	}
	if err := config.WriteTemplate(target, *force); err != nil {
		log.Fatal(err)
	}
	log.Printf("Wrote radiolinkd config template to %s", target)
}
