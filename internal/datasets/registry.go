package datasets

import (
	"fmt"
	"strings"

	"rawbench/internal/config"
	"rawbench/internal/services"
)

// Auxiliary input file names below the data directory.
const (
	FreischuetzURLList   = "Freischuetz.txt"
	FreischuetzHashTable = "Freischuetz-hash.txt"
)

// Registry returns the acquisition adapters in their fixed run order.
func Registry(cfg *config.Config) []Adapter {
	hub := Hub{}
	algorithm := ""
	if cfg != nil {
		hub = Hub{
			Endpoint: cfg.HuggingFace.Endpoint,
			Token:    cfg.HuggingFace.Token,
			Revision: cfg.HuggingFace.Revision,
		}
		algorithm = cfg.Checksum.Algorithm
	}
	urlList, hashTable := FreischuetzURLList, FreischuetzHashTable
	if cfg != nil {
		urlList = cfg.AuxiliaryPath(FreischuetzURLList)
		hashTable = cfg.AuxiliaryPath(FreischuetzHashTable)
	}
	return []Adapter{
		NewJaCappella(hub),
		NewBach10(""),
		NewClotho(),
		NewAIR(),
		NewDAPS(),
		NewFreischuetz(urlList, hashTable, algorithm),
		NewGuitarSet(),
		NewMAESTRO(),
		NewPCD(),
		NewDEMAND(),
	}
}

// Names returns the adapter names in order.
func Names(adapters []Adapter) []string {
	names := make([]string, 0, len(adapters))
	for _, a := range adapters {
		names = append(names, a.Name())
	}
	return names
}

// Filter keeps the adapters named in only, preserving registry order.
// Names match case-insensitively; an unknown name is a configuration error.
func Filter(adapters []Adapter, only []string) ([]Adapter, error) {
	if len(only) == 0 {
		return adapters, nil
	}
	wanted := make(map[string]bool, len(only))
	for _, name := range only {
		a, ok := Lookup(adapters, name)
		if !ok {
			return nil, services.Wrap(services.ErrConfiguration, "", "select datasets",
				fmt.Sprintf("unknown dataset %q (known: %s)", name, strings.Join(Names(adapters), ", ")), nil)
		}
		wanted[a.Name()] = true
	}
	out := make([]Adapter, 0, len(wanted))
	for _, a := range adapters {
		if wanted[a.Name()] {
			out = append(out, a)
		}
	}
	return out, nil
}

// Lookup finds an adapter by case-insensitive name.
func Lookup(adapters []Adapter, name string) (Adapter, bool) {
	name = strings.TrimSpace(name)
	for _, a := range adapters {
		if strings.EqualFold(a.Name(), name) {
			return a, true
		}
	}
	return nil, false
}
