package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/Alia5/joybridge/internal/configpaths"

	toml "github.com/pelletier/go-toml"
	yaml "gopkg.in/yaml.v3"
)

// ConfigCommand groups config-related subcommands.
type ConfigCommand struct {
	Init ConfigInit `cmd:"" help:"Generate a configuration template"`
}

// ConfigInit writes a configuration template with every option of a
// command set to its default.
type ConfigInit struct {
	Command string `arg:"" name:"command" help:"Command to generate config for" enum:"run,calibrate" default:"run"`
	Format  string `help:"Output format" enum:"json,yaml,yml,toml" default:"yaml"`
	Output  string `help:"Destination file path (defaults to the user config dir)"`
	Force   bool   `help:"Overwrite if the file already exists"`
}

// Run generates a configuration template dynamically via reflection of the command structs and tags.
func (c *ConfigInit) Run() error {
	format := normalizeFormat(c.Format)
	if format == "" {
		return fmt.Errorf("unsupported format: %s", c.Format)
	}

	var root map[string]any
	switch c.Command {
	case "run", "":
		root = buildMapFromStruct(reflect.TypeOf(Bridge{}))
	case "calibrate":
		root = buildMapFromStruct(reflect.TypeOf(Calibrate{}))
	default:
		return errors.New("unknown command; expected 'run' or 'calibrate'")
	}

	dest := c.Output
	if dest == "" {
		p, err := configpaths.DefaultConfigPath(format)
		if err != nil {
			return fmt.Errorf("failed to resolve config path: %w", err)
		}
		dest = p
	}

	if !c.Force {
		if _, err := os.Stat(dest); err == nil {
			return errors.New("destination exists; use --force to overwrite")
		}
	}
	if err := configpaths.EnsureDir(dest); err != nil {
		return err
	}

	var data []byte
	var err error
	switch format {
	case "json":
		data, err = json.MarshalIndent(root, "", "  ")
	case "yaml":
		data, err = yaml.Marshal(root)
	case "toml":
		data, err = toml.Marshal(root)
	}
	if err != nil {
		return err
	}
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return err
	}
	fmt.Println("Wrote", dest)
	return nil
}

func normalizeFormat(f string) string {
	switch f = strings.ToLower(f); f {
	case "json", "toml", "yaml":
		return f
	case "yml":
		return "yaml"
	}
	return ""
}

// templateKey is the config key kong resolves for a field.
func templateKey(f reflect.StructField) string {
	if name := f.Tag.Get("name"); name != "" {
		return name
	}
	r, size := utf8.DecodeRuneInString(f.Name)
	return string(unicode.ToLower(r)) + f.Name[size:]
}

// buildMapFromStruct mirrors the flag tree of a kong command as nested
// maps of default values. Embedded groups nest under their prefix.
func buildMapFromStruct(t reflect.Type) map[string]any {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	out := map[string]any{}
	for f := range structFields(t) {
		if _, embedded := f.Tag.Lookup("embed"); embedded {
			sub := buildMapFromStruct(f.Type)
			if name := strings.TrimSuffix(f.Tag.Get("prefix"), "."); name != "" {
				out[name] = sub
			} else {
				maps.Copy(out, sub)
			}
			continue
		}
		if v := templateValue(f.Type, f.Tag.Get("default")); v != nil {
			out[templateKey(f)] = v
		}
	}
	return out
}

// structFields yields the exported fields that kong maps to flags.
func structFields(t reflect.Type) func(yield func(reflect.StructField) bool) {
	return func(yield func(reflect.StructField) bool) {
		for i := range t.NumField() {
			f := t.Field(i)
			if !f.IsExported() || f.Tag.Get("kong") == "-" {
				continue
			}
			if _, isArg := f.Tag.Lookup("arg"); isArg {
				continue
			}
			if _, isCmd := f.Tag.Lookup("cmd"); isCmd {
				continue
			}
			if !yield(f) {
				return
			}
		}
	}
}

// templateValue parses def into the field's kind. Unparseable or
// missing defaults yield the zero value.
func templateValue(t reflect.Type, def string) any {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == reflect.TypeFor[time.Duration]() {
		if d, err := time.ParseDuration(def); err == nil {
			return d.String()
		}
		return "0s"
	}
	switch t.Kind() {
	case reflect.String:
		return def
	case reflect.Bool:
		b, _ := strconv.ParseBool(def)
		return b
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, _ := strconv.ParseInt(def, 0, 64)
		return n
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, _ := strconv.ParseUint(def, 0, 64)
		return n
	case reflect.Float32, reflect.Float64:
		x, _ := strconv.ParseFloat(def, 64)
		return x
	case reflect.Struct:
		return buildMapFromStruct(t)
	}
	return nil
}
