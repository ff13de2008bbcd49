package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	cobraDoc "github.com/spf13/cobra/doc"

	"github.com/dotsetgreg/aizoo/pkg/config"
)

func newDocsCommand(rootFactory func() *cobra.Command) *cobra.Command {
	docsRoot := &cobra.Command{
		Use:    "docs",
		Short:  "Internal docs maintenance commands",
		Hidden: true,
	}

	var (
		outputDir string
		checkOnly bool
	)

	gen := &cobra.Command{
		Use:   "generate",
		Short: "Generate CLI and config reference docs",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(outputDir) == "" {
				return fmt.Errorf("--output must not be empty")
			}
			return generateDocumentation(rootFactory, outputDir, checkOnly)
		},
	}
	gen.Flags().StringVar(&outputDir, "output", "docs", "Docs directory root")
	gen.Flags().BoolVar(&checkOnly, "check", false, "Fail if generated docs are out of date")

	docsRoot.AddCommand(gen)
	return docsRoot
}

func generateDocumentation(rootFactory func() *cobra.Command, outputDir string, checkOnly bool) error {
	tmpDir, err := os.MkdirTemp("", "aizoo-docs-gen-*")
	if err != nil {
		return fmt.Errorf("create temp docs dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	if err := writeGeneratedReferences(rootFactory, tmpDir); err != nil {
		return err
	}
	generated, err := readTree(tmpDir)
	if err != nil {
		return err
	}

	if checkOnly {
		current, err := readTree(outputDir)
		if err != nil {
			return err
		}
		return compareTrees(generated, current)
	}

	for rel, data := range generated {
		if err := writeTextFile(filepath.Join(outputDir, rel), string(data)); err != nil {
			return fmt.Errorf("write %s: %w", rel, err)
		}
	}
	return nil
}

func writeGeneratedReferences(rootFactory func() *cobra.Command, outDir string) error {
	cliRoot := rootFactory()
	markCommandsForDocgen(cliRoot)

	cliDir := filepath.Join(outDir, "reference", "cli")
	if err := os.MkdirAll(cliDir, 0o755); err != nil {
		return fmt.Errorf("create cli docs dir: %w", err)
	}
	prepender := func(filename string) string {
		title := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
		title = strings.ReplaceAll(title, "_", " ")
		return fmt.Sprintf("# %s\n\n", strings.TrimSpace(title))
	}
	linkHandler := func(name string) string {
		return name
	}
	if err := cobraDoc.GenMarkdownTreeCustom(cliRoot, cliDir, prepender, linkHandler); err != nil {
		return fmt.Errorf("generate cli markdown docs: %w", err)
	}

	manDir := filepath.Join(outDir, "reference", "man")
	if err := os.MkdirAll(manDir, 0o755); err != nil {
		return fmt.Errorf("create man docs dir: %w", err)
	}
	header := &cobraDoc.GenManHeader{
		Title:   "AIZOO",
		Section: "1",
		Source:  "aizoo",
	}
	if err := cobraDoc.GenManTree(cliRoot, header, manDir); err != nil {
		return fmt.Errorf("generate man pages: %w", err)
	}

	configRef, err := buildConfigReferenceMarkdown()
	if err != nil {
		return err
	}
	return writeTextFile(filepath.Join(outDir, "reference", "config.md"), configRef)
}

func markCommandsForDocgen(cmd *cobra.Command) {
	cmd.DisableAutoGenTag = true
	for _, child := range cmd.Commands() {
		if child.Name() == "docs" {
			continue
		}
		markCommandsForDocgen(child)
	}
}

func writeTextFile(path string, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create parent dir for %s: %w", path, err)
	}
	return os.WriteFile(path, []byte(content), 0o644)
}

// readTree maps slash-separated relative paths under root/reference to file
// contents. A missing root yields an empty map.
func readTree(root string) (map[string][]byte, error) {
	files := map[string][]byte{}
	base := filepath.Join(root, "reference")
	err := filepath.WalkDir(base, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if os.IsNotExist(walkErr) && path == base {
				return fs.SkipDir
			}
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		files[filepath.ToSlash(rel)] = data
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

func compareTrees(generated, current map[string][]byte) error {
	names := make([]string, 0, len(generated))
	for rel := range generated {
		names = append(names, rel)
	}
	sort.Strings(names)
	for _, rel := range names {
		have, ok := current[rel]
		if !ok {
			return fmt.Errorf("docs out of date: missing %s", rel)
		}
		if !bytes.Equal(generated[rel], have) {
			return fmt.Errorf("docs out of date: %s changed; run `aizoo docs generate`", rel)
		}
	}
	for rel := range current {
		if _, ok := generated[rel]; !ok {
			return fmt.Errorf("docs out of date: stale %s", rel)
		}
	}
	return nil
}

type configFieldRow struct {
	Path    string
	Type    string
	Env     string
	Default string
}

func buildConfigReferenceMarkdown() (string, error) {
	defaults, err := flattenConfigDefaults()
	if err != nil {
		return "", err
	}

	rows := []configFieldRow{}
	collectConfigRows(reflect.TypeOf((*config.Config)(nil)).Elem(), "", defaults, &rows)
	sort.Slice(rows, func(i, j int) bool { return rows[i].Path < rows[j].Path })

	var b strings.Builder
	b.WriteString("# Config Reference\n\n")
	b.WriteString("Generated from `pkg/config/config.go` and `config.DefaultConfig()`.\n\n")
	b.WriteString("| Key | Type | Env Var | Default |\n")
	b.WriteString("| --- | --- | --- | --- |\n")
	for _, row := range rows {
		b.WriteString("| `" + escapePipes(row.Path) + "` | `" + escapePipes(row.Type) + "` | `" + escapePipes(valueOr(row.Env, "-")) + "` | `" + escapePipes(valueOr(row.Default, "-")) + "` |\n")
	}
	return b.String(), nil
}

func collectConfigRows(t reflect.Type, prefix string, defaults map[string]string, rows *[]configFieldRow) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		jsonTag := strings.TrimSpace(strings.Split(f.Tag.Get("json"), ",")[0])
		if jsonTag == "" || jsonTag == "-" {
			continue
		}
		path := jsonTag
		if prefix != "" {
			path = prefix + "." + jsonTag
		}

		if f.Type.Kind() == reflect.Struct {
			collectConfigRows(f.Type, path, defaults, rows)
			continue
		}

		*rows = append(*rows, configFieldRow{
			Path:    path,
			Type:    friendlyType(f.Type),
			Env:     strings.TrimSpace(f.Tag.Get("env")),
			Default: defaults[path],
		})
	}
}

func flattenConfigDefaults() (map[string]string, error) {
	data, err := json.Marshal(config.DefaultConfig())
	if err != nil {
		return nil, err
	}
	var root map[string]any
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, err
	}
	out := map[string]string{}
	flattenMapValues("", root, out)
	return out, nil
}

// flattenMapValues stops at the first level that is not an object, so map
// fields such as persona.property_map render as one JSON value.
func flattenMapValues(prefix string, v any, out map[string]string) {
	if typed, ok := v.(map[string]any); ok && !isLeafMap(prefix) {
		for k, child := range typed {
			next := k
			if prefix != "" {
				next = prefix + "." + k
			}
			flattenMapValues(next, child, out)
		}
		return
	}
	encoded, _ := json.Marshal(v)
	out[prefix] = string(encoded)
}

func isLeafMap(path string) bool {
	return path == "persona.property_map"
}

func friendlyType(t reflect.Type) string {
	switch t.Kind() {
	case reflect.String:
		return "string"
	case reflect.Bool:
		return "bool"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return "int"
	case reflect.Float32, reflect.Float64:
		return "float"
	case reflect.Slice:
		return "array<" + friendlyType(t.Elem()) + ">"
	case reflect.Map:
		return "map<" + friendlyType(t.Key()) + "," + friendlyType(t.Elem()) + ">"
	case reflect.Pointer:
		return "*" + friendlyType(t.Elem())
	default:
		return t.String()
	}
}

func escapePipes(v string) string {
	return strings.ReplaceAll(v, "|", "\\|")
}

func valueOr(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
