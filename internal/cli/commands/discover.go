package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/gopcua/opcua/ua"
	"github.com/spf13/cobra"

	"github.com/conduit-lang/uadiscover/internal/cli/ui"
	"github.com/conduit-lang/uadiscover/internal/discovery"
	"github.com/conduit-lang/uadiscover/internal/factory"
)

// NewDiscoverCommand creates the discover command
func NewDiscoverCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Register the custom data types of a server and list them",
		Long: `Browse every type dictionary of the server, register the structures and
enumerations it declares and print them per namespace.

Examples:
  uadiscover discover --endpoint opc.tcp://localhost:4840
  uadiscover discover --snapshot plant.yaml --namespace 2
  uadiscover discover --snapshot plant.yaml --type Point
  uadiscover discover --snapshot plant.yaml --json`,
		Args: cobra.NoArgs,
		RunE: runDiscover,
	}

	addSourceFlags(cmd)
	cmd.Flags().Int("namespace", -1, "Only list the types of this namespace index")
	cmd.Flags().String("type", "", "Show the fields or values of one type")
	cmd.Flags().Bool("json", false, "Print the discovery report as JSON")
	cmd.Flags().Bool("stats", false, "Print the number of service calls made")

	return cmd
}

func runDiscover(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()
	nc := noColor(cmd)

	cfg, err := loadConfig(cmd)
	if err != nil {
		ui.ConfigError(err, nc).Write(cmd.ErrOrStderr())
		return err
	}
	logger, err := cfg.Logger()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	var r *run
	spinner := ui.NewSpinner(cmd.ErrOrStderr(), "Discovering data types", 0, nc)
	err = spinner.Run(func() error {
		var err error
		r, err = discover(cmd.Context(), cfg, logger)
		return err
	})
	if err != nil {
		if cfg.Endpoint != "" && errors.Is(err, errOpenSource) {
			ui.ConnectError(cfg.Endpoint, err, nc).Write(cmd.ErrOrStderr())
		}
		return err
	}

	flags := cmd.Flags()
	ns, _ := flags.GetInt("namespace")
	if ns > int(^uint16(0)) {
		return fmt.Errorf("namespace index %d out of range", ns)
	}

	if asJSON, _ := flags.GetBool("json"); asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(r.report)
	}

	if name, _ := flags.GetString("type"); name != "" {
		return showType(out, r.manager, name, ns, nc)
	}

	renderReport(out, r.report, nc)
	renderTypes(out, r.manager, ns, nc)
	if withStats, _ := flags.GetBool("stats"); withStats {
		renderStats(out, r, nc)
	}
	return nil
}

func renderReport(w io.Writer, rep *discovery.Report, nc bool) {
	ui.Header(w, "Dictionaries", nc)
	table := ui.NewTable(w, []string{"NAME", "NS", "PATH", "REGISTERED", "VERIFIED", "FAILED"},
		&ui.TableOptions{NoColor: nc, AlignRight: []int{1, 3, 4, 5}})
	for _, d := range rep.Dictionaries {
		table.AddRow(d.Name, strconv.Itoa(int(d.Namespace)), string(d.Path),
			strconv.Itoa(len(d.Registered)), strconv.Itoa(d.Verified), strconv.Itoa(len(d.Failures)))
	}
	table.Render()
	fmt.Fprintln(w)

	for _, f := range rep.Failures() {
		ui.Warning(f.Error(), nc).Write(w)
	}
	for _, d := range rep.Dictionaries {
		if len(d.Missing) > 0 {
			ui.Warning(fmt.Sprintf("%s: no type registered for %s", d.Name, strings.Join(d.Missing, ", ")), nc).Write(w)
		}
		if d.VerifyErr != nil {
			ui.Warning(d.VerifyErr.Error(), nc).Write(w)
		}
	}
}

func renderTypes(w io.Writer, m *discovery.Manager, only int, nc bool) {
	for _, ns := range m.Namespaces() {
		if ns == 0 || (only >= 0 && int(ns) != only) {
			continue
		}
		f, err := m.Factory(ns)
		if err != nil || f.Count() == 0 {
			continue
		}

		title := fmt.Sprintf("Namespace %d", ns)
		if uri := m.NamespaceURI(ns); uri != "" {
			title += " " + uri
		}
		ui.Header(w, title, nc)

		table := ui.NewTable(w, []string{"NAME", "KIND", "BASE", "MEMBERS", "NODE"}, &ui.TableOptions{NoColor: nc, AlignRight: []int{3}})
		for _, s := range f.StructuredTypes() {
			table.AddRow(s.Name, structureKind(s.StructureType), s.BaseType, strconv.Itoa(len(s.Fields)), nodeString(s.DataTypeNodeID))
		}
		for _, e := range f.Enumerations() {
			table.AddRow(e.Name, "enumeration", "", strconv.Itoa(len(e.Values)), nodeString(e.DataTypeNodeID))
		}
		table.Render()
		fmt.Fprintln(w)
	}
}

func renderStats(w io.Writer, r *run, nc bool) {
	ui.Header(w, "Service calls", nc)
	kv := ui.NewKeyValueTable(w, nc)
	kv.AddRow("Pass", r.report.PassID)
	kv.AddRow("Browse", fmt.Sprintf("%d calls, %d nodes", r.stats.BrowseCalls, r.stats.BrowseItems))
	kv.AddRow("Read", fmt.Sprintf("%d calls, %d attributes", r.stats.ReadCalls, r.stats.ReadItems))
	kv.AddRow("TranslateBrowsePaths", fmt.Sprintf("%d calls, %d paths", r.stats.TranslateCalls, r.stats.TranslateItems))
	kv.AddRow("Round trips", strconv.FormatInt(r.stats.RoundTrips(), 10))
	kv.Render()
}

// showType prints one type. Without a namespace filter the first namespace
// holding the name wins.
func showType(w io.Writer, m *discovery.Manager, name string, only int, nc bool) error {
	var names []string
	lookupNS := uint16(0)
	for _, ns := range m.Namespaces() {
		if ns == 0 || (only >= 0 && int(ns) != only) {
			continue
		}
		lookupNS = ns
		f, err := m.Factory(ns)
		if err != nil {
			continue
		}
		for _, s := range f.StructuredTypes() {
			if s.Name == name {
				renderStructure(w, ns, s, nc)
				return nil
			}
			names = append(names, s.Name)
		}
		for _, e := range f.Enumerations() {
			if e.Name == name {
				renderEnumeration(w, ns, e, nc)
				return nil
			}
			names = append(names, e.Name)
		}
	}
	if only >= 0 {
		lookupNS = uint16(only)
	}
	ui.TypeNotFound(name, lookupNS, ui.Suggest(name, names, 3), nc).Write(w)
	return fmt.Errorf("type %s: %w", name, factory.ErrTypeNotFound)
}

func renderStructure(w io.Writer, ns uint16, s *factory.StructuredTypeSchema, nc bool) {
	ui.Header(w, fmt.Sprintf("%s (namespace %d)", s.Name, ns), nc)
	kv := ui.NewKeyValueTable(w, nc)
	kv.AddRow("Kind", structureKind(s.StructureType))
	kv.AddRow("Base", s.BaseType)
	kv.AddRow("Node", nodeString(s.DataTypeNodeID))
	if s.EncodingDefaultBinary != nil {
		kv.AddRow(discovery.DefaultBinary, s.EncodingDefaultBinary.String())
	}
	if s.EncodingDefaultXML != nil {
		kv.AddRow(discovery.DefaultXML, s.EncodingDefaultXML.String())
	}
	if s.EncodingDefaultJSON != nil {
		kv.AddRow(discovery.DefaultJSON, s.EncodingDefaultJSON.String())
	}
	kv.Render()
	fmt.Fprintln(w)

	table := ui.NewTable(w, []string{"FIELD", "TYPE", "CATEGORY"}, &ui.TableOptions{NoColor: nc})
	for _, f := range s.Fields {
		fieldType := f.FieldType
		if f.IsArray {
			fieldType += "[]"
		}
		if f.IsOptional {
			fieldType += "?"
		}
		table.AddRow(f.Name, fieldType, f.Category.String())
	}
	table.Render()
}

func renderEnumeration(w io.Writer, ns uint16, e *factory.EnumerationSchema, nc bool) {
	ui.Header(w, fmt.Sprintf("%s (namespace %d)", e.Name, ns), nc)
	table := ui.NewTable(w, []string{"NAME", "VALUE"}, &ui.TableOptions{NoColor: nc, AlignRight: []int{1}})
	for _, v := range e.Values {
		table.AddRow(v.Name, strconv.FormatInt(v.Value, 10))
	}
	table.Render()
}

func structureKind(t ua.StructureType) string {
	switch t {
	case ua.StructureTypeStructure:
		return "structure"
	case ua.StructureTypeStructureWithOptionalFields:
		return "optional fields"
	case ua.StructureTypeUnion:
		return "union"
	default:
		return fmt.Sprintf("structure type %d", t)
	}
}

func nodeString(id *ua.NodeID) string {
	if id == nil {
		return ""
	}
	return id.String()
}
