// Package decoder translates raw call data and logs into method and event names
// with structured arguments. Decoding is best effort: unknown selectors and
// malformed payloads are reported as not decoded, never as errors.
package decoder

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
)

// maxNameLength matches the width of the decoded_method and event_name columns.
const maxNameLength = 255

type methodEntry struct {
	name string
	args abi.Arguments
	// typed is false when argument types could not be parsed from a signature.
	typed bool
}

type eventEntry struct {
	name  string
	event *abi.Event
}

// Decoder resolves 4-byte selectors and event topics. It is safe for concurrent
// use once constructed.
type Decoder struct {
	methods map[[4]byte][]methodEntry
	events  map[common.Hash][]eventEntry
}

// New returns a decoder loaded with the built-in interfaces.
func New() (*Decoder, error) {
	d := &Decoder{
		methods: make(map[[4]byte][]methodEntry),
		events:  make(map[common.Hash][]eventEntry),
	}

	names := make([]string, 0, len(builtinABIs))
	for name := range builtinABIs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := d.AddABI(strings.NewReader(builtinABIs[name])); err != nil {
			return nil, fmt.Errorf("builtin abi %s: %w", name, err)
		}
	}
	for _, sig := range builtinMethodSignatures {
		d.AddMethodSignature(sig)
	}
	for _, sig := range builtinEventSignatures {
		d.AddEventSignature(sig)
	}
	return d, nil
}

// AddABI registers every method and event of a JSON ABI document.
func (d *Decoder) AddABI(r io.Reader) error {
	parsed, err := abi.JSON(r)
	if err != nil {
		return err
	}
	for _, m := range parsed.Methods {
		var sel [4]byte
		copy(sel[:], m.ID)
		d.methods[sel] = append(d.methods[sel], methodEntry{name: cleanName(m.RawName), args: m.Inputs, typed: true})
	}
	for _, e := range parsed.Events {
		ev := e
		d.events[e.ID] = append(d.events[e.ID], eventEntry{name: cleanName(e.RawName), event: &ev})
	}
	return nil
}

// AddMethodSignature registers a method by its canonical signature, e.g.
// "transfer(address,uint256)". Arguments are decoded positionally when the
// types can be parsed.
func (d *Decoder) AddMethodSignature(sig string) {
	name, types := splitSignature(sig)
	var sel [4]byte
	copy(sel[:], crypto.Keccak256([]byte(sig))[:4])

	entry := methodEntry{name: cleanName(name)}
	if args, err := argumentsFor(types); err == nil {
		entry.args = args
		entry.typed = true
	}
	d.methods[sel] = append(d.methods[sel], entry)
}

// AddEventSignature registers an event name by its canonical signature.
func (d *Decoder) AddEventSignature(sig string) {
	name, _ := splitSignature(sig)
	id := crypto.Keccak256Hash([]byte(sig))
	d.events[id] = append(d.events[id], eventEntry{name: cleanName(name)})
}

// LoadDir loads every *.json file under dir as an ABI. Files may hold a bare
// ABI array or a build artifact with an "abi" field.
func (d *Decoder) LoadDir(dir string, logger *zap.Logger) (int, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return 0, err
	}

	loaded := 0
	for _, file := range files {
		raw, err := os.ReadFile(file)
		if err != nil {
			return loaded, fmt.Errorf("read %s: %w", file, err)
		}
		if err := d.AddABI(bytes.NewReader(abiDocument(raw))); err != nil {
			logger.Warn("Skipping unparseable ABI file", zap.String("file", file), zap.Error(err))
			continue
		}
		loaded++
	}
	return loaded, nil
}

func abiDocument(raw []byte) []byte {
	var artifact struct {
		ABI json.RawMessage `json:"abi"`
	}
	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && trimmed[0] == '{' {
		if err := json.Unmarshal(trimmed, &artifact); err == nil && len(artifact.ABI) > 0 {
			return artifact.ABI
		}
	}
	return raw
}

// MethodID returns the hex selector of call data, or "" when input is too short.
func MethodID(input []byte) string {
	if len(input) < 4 {
		return ""
	}
	return "0x" + hex.EncodeToString(input[:4])
}

// DecodeMethod resolves the method name of call data and, when possible, its
// arguments. ok is false when the selector is unknown.
func (d *Decoder) DecodeMethod(input []byte) (name string, args map[string]any, ok bool) {
	if len(input) < 4 {
		return "", nil, false
	}
	var sel [4]byte
	copy(sel[:], input[:4])

	entries := d.methods[sel]
	if len(entries) == 0 {
		return "", nil, false
	}
	for _, entry := range entries {
		if !entry.typed {
			continue
		}
		values, err := entry.args.Unpack(input[4:])
		if err != nil {
			continue
		}
		return entry.name, namedValues(entry.args, values), true
	}
	return entries[0].name, nil, true
}

// DecodeEvent resolves the event name of a log and, when possible, its fields.
// ok is false when topic0 is unknown.
func (d *Decoder) DecodeEvent(topics []common.Hash, data []byte) (name string, fields map[string]any, ok bool) {
	if len(topics) == 0 {
		return "", nil, false
	}
	entries := d.events[topics[0]]
	if len(entries) == 0 {
		return "", nil, false
	}

	for _, entry := range entries {
		if entry.event == nil {
			continue
		}
		if fields, err := unpackEvent(entry.event, topics[1:], data); err == nil {
			return entry.name, fields, true
		}
	}
	return entries[0].name, nil, true
}

func unpackEvent(ev *abi.Event, topics []common.Hash, data []byte) (map[string]any, error) {
	var indexed abi.Arguments
	for _, arg := range ev.Inputs {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	if len(indexed) != len(topics) {
		return nil, fmt.Errorf("event %s expects %d indexed topics, got %d", ev.Name, len(indexed), len(topics))
	}

	raw := make(map[string]any)
	if err := abi.ParseTopicsIntoMap(raw, indexed, topics); err != nil {
		return nil, err
	}
	nonIndexed := ev.Inputs.NonIndexed()
	if len(nonIndexed) > 0 {
		if err := nonIndexed.UnpackIntoMap(raw, data); err != nil {
			return nil, err
		}
	} else if len(data) > 0 {
		return nil, fmt.Errorf("event %s carries unexpected data", ev.Name)
	}

	out := make(map[string]any, len(raw))
	for k, v := range raw {
		out[cleanText(k)] = normalize(v)
	}
	return out, nil
}

func namedValues(args abi.Arguments, values []any) map[string]any {
	out := make(map[string]any, len(values))
	for i, v := range values {
		key := fmt.Sprintf("arg%d", i)
		if i < len(args) && args[i].Name != "" {
			key = args[i].Name
		}
		out[cleanText(key)] = normalize(v)
	}
	return out
}

// normalize converts ABI values into JSON-friendly forms: integers as decimal
// strings, addresses and byte strings as lowercase hex.
func normalize(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case *big.Int:
		if val == nil {
			return nil
		}
		return val.String()
	case common.Address:
		return strings.ToLower(val.Hex())
	case common.Hash:
		return val.Hex()
	case []byte:
		return "0x" + hex.EncodeToString(val)
	case string:
		return cleanText(val)
	case bool:
		return val
	case uint8, uint16, uint32, uint64, int8, int16, int32, int64:
		return fmt.Sprint(val)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			b := make([]byte, rv.Len())
			reflect.Copy(reflect.ValueOf(b), rv)
			return "0x" + hex.EncodeToString(b)
		}
		fallthrough
	case reflect.Slice:
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out[i] = normalize(rv.Index(i).Interface())
		}
		return out
	case reflect.Struct:
		out := make(map[string]any, rv.NumField())
		for i := 0; i < rv.NumField(); i++ {
			f := rv.Type().Field(i)
			if !f.IsExported() {
				continue
			}
			key := f.Name
			if tag := f.Tag.Get("json"); tag != "" {
				key = strings.Split(tag, ",")[0]
			}
			out[key] = normalize(rv.Field(i).Interface())
		}
		return out
	case reflect.Ptr:
		if rv.IsNil() {
			return nil
		}
		return normalize(rv.Elem().Interface())
	}
	return fmt.Sprint(v)
}

// cleanText removes NUL characters, which PostgreSQL rejects in text and jsonb.
func cleanText(s string) string {
	if strings.IndexByte(s, 0) < 0 {
		return s
	}
	return strings.ReplaceAll(s, "\x00", "")
}

func cleanName(s string) string {
	s = cleanText(s)
	if utf8.RuneCountInString(s) <= maxNameLength {
		return s
	}
	r := []rune(s)
	return string(r[:maxNameLength])
}

func splitSignature(sig string) (string, []string) {
	open := strings.IndexByte(sig, '(')
	if open < 0 || !strings.HasSuffix(sig, ")") {
		return sig, nil
	}
	name := sig[:open]
	inner := sig[open+1 : len(sig)-1]
	if inner == "" {
		return name, nil
	}

	var types []string
	depth, start := 0, 0
	for i, r := range inner {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				types = append(types, inner[start:i])
				start = i + 1
			}
		}
	}
	return name, append(types, inner[start:])
}

func argumentsFor(types []string) (abi.Arguments, error) {
	args := make(abi.Arguments, 0, len(types))
	for _, t := range types {
		if strings.HasPrefix(t, "(") {
			return nil, fmt.Errorf("tuple argument %s needs a JSON ABI", t)
		}
		typ, err := abi.NewType(t, "", nil)
		if err != nil {
			return nil, err
		}
		args = append(args, abi.Argument{Type: typ})
	}
	return args, nil
}
