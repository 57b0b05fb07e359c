package wasm

import (
	stderrors "errors"
	"fmt"
	"io"

	"github.com/wippyai/wasm-interp/errors"
	"github.com/wippyai/wasm-interp/wasm/internal/binary"
)

// Parsing errors returned by ParseModule.
var (
	ErrInvalidMagic   = stderrors.New("invalid wasm magic number")
	ErrInvalidVersion = stderrors.New("invalid wasm version")
)

var sectionNames = [...]string{
	SectionCustom:   "custom",
	SectionType:     "type",
	SectionImport:   "import",
	SectionFunction: "function",
	SectionTable:    "table",
	SectionMemory:   "memory",
	SectionGlobal:   "global",
	SectionExport:   "export",
	SectionStart:    "start",
	SectionElement:  "element",
	SectionCode:     "code",
	SectionData:     "data",
}

// SectionName returns the human-readable name of a section id.
func SectionName(id byte) string {
	if int(id) < len(sectionNames) {
		return sectionNames[id]
	}
	return fmt.Sprintf("section(0x%02x)", id)
}

// ParseModule parses a WebAssembly binary module.
//
// Every section reader runs over exactly the payload length declared in the
// section header. A reader that stops short or runs past the payload fails
// the whole parse with KindSizeMismatch. Function bodies in the result alias
// data.
func ParseModule(data []byte) (*Module, error) {
	r := binary.NewReader(data)

	magic, err := r.ReadU32LE()
	if err != nil {
		return nil, errors.New(errors.PhaseDecode, errors.KindInvalidData).
			Path("header").Cause(err).Detail("truncated header").Build()
	}
	if magic != Magic {
		return nil, errors.New(errors.PhaseDecode, errors.KindInvalidData).
			Path("header").Value(magic).Cause(ErrInvalidMagic).Build()
	}

	version, err := r.ReadU32LE()
	if err != nil {
		return nil, errors.New(errors.PhaseDecode, errors.KindInvalidData).
			Path("header").Cause(err).Detail("truncated header").Build()
	}
	if version != Version {
		return nil, errors.New(errors.PhaseDecode, errors.KindInvalidData).
			Path("header").Value(version).Cause(ErrInvalidVersion).
			Detail("version %d", version).Build()
	}

	m := &Module{}
	var lastSection byte

	for r.Len() > 0 {
		start := r.Offset()
		sectionID, _ := r.ReadByte()

		if sectionID > SectionData {
			return nil, errors.Decode(errors.KindInvalidData, "section header", start,
				"unknown section id 0x%02x", sectionID)
		}

		// Custom sections can appear anywhere
		if sectionID != SectionCustom {
			if sectionID <= lastSection {
				return nil, errors.Decode(errors.KindInvalidData, SectionName(sectionID), start,
					"section appears out of order or more than once")
			}
			lastSection = sectionID
		}

		sectionSize, err := r.ReadU32()
		if err != nil {
			return nil, errors.New(errors.PhaseDecode, errors.KindSizeMismatch).
				Path(SectionName(sectionID)).Offset(start).Cause(err).
				Detail("unreadable section length").Build()
		}

		payloadStart := r.Offset()
		payload, err := r.ReadBytes(int(sectionSize))
		if err != nil {
			return nil, errors.Decode(errors.KindSizeMismatch, SectionName(sectionID), start,
				"section declares %d bytes, only %d remain", sectionSize, r.Len())
		}

		sr := binary.NewReaderAt(payload, payloadStart)
		if err := parseSection(sectionID, sr, m); err != nil {
			return nil, sectionError(sectionID, sr, err)
		}
		if sr.Len() != 0 {
			return nil, errors.Decode(errors.KindSizeMismatch, SectionName(sectionID), sr.Offset(),
				"section declares %d bytes, reader consumed %d", sectionSize, sr.Position())
		}
	}

	if len(m.Funcs) != len(m.Code) {
		return nil, errors.Decode(errors.KindInvalidData, "code", 0,
			"function section declares %d functions, code section has %d bodies", len(m.Funcs), len(m.Code))
	}

	return m, nil
}

func parseSection(id byte, r *binary.Reader, m *Module) error {
	switch id {
	case SectionCustom:
		return parseCustomSection(r, m)
	case SectionType:
		return parseTypeSection(r, m)
	case SectionImport:
		return parseImportSection(r, m)
	case SectionFunction:
		return parseFunctionSection(r, m)
	case SectionTable:
		return parseTableSection(r, m)
	case SectionMemory:
		return parseMemorySection(r, m)
	case SectionGlobal:
		return parseGlobalSection(r, m)
	case SectionExport:
		return parseExportSection(r, m)
	case SectionStart:
		return parseStartSection(r, m)
	case SectionElement:
		return parseElementSection(r, m)
	case SectionCode:
		return parseCodeSection(r, m)
	case SectionData:
		return parseDataSection(r, m)
	}
	return fmt.Errorf("unknown section ID: 0x%02x", id)
}

// sectionError converts a reader failure into a structured decode error.
// Running off the end of a payload is an over-read of the declared length.
func sectionError(id byte, r *binary.Reader, err error) error {
	var e *errors.Error
	if stderrors.As(err, &e) {
		if e.Offset == 0 {
			e.Offset = r.Offset()
		}
		return e.WithPath(SectionName(id))
	}
	kind := errors.KindInvalidData
	switch {
	case stderrors.Is(err, io.ErrUnexpectedEOF), stderrors.Is(err, io.EOF):
		kind = errors.KindSizeMismatch
	case stderrors.Is(err, binary.ErrOverflow):
		kind = errors.KindOverflow
	case stderrors.Is(err, binary.ErrInvalidUTF8):
		kind = errors.KindInvalidUTF8
	}
	return errors.New(errors.PhaseDecode, kind).
		Path(SectionName(id)).Offset(r.Offset()).Cause(err).Build()
}

func parseCustomSection(r *binary.Reader, m *Module) error {
	name, err := r.ReadName()
	if err != nil {
		return err
	}
	rest, err := r.ReadRemaining()
	if err != nil {
		return err
	}
	m.CustomSections = append(m.CustomSections, CustomSection{
		Name: name,
		Data: rest,
	})
	return nil
}

func parseTypeSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	if int(count) > r.Len() {
		return io.ErrUnexpectedEOF
	}
	m.Types = make([]FuncType, count)
	for i := uint32(0); i < count; i++ {
		form, err := r.ReadByte()
		if err != nil {
			return err
		}
		if form != FuncTypeByte {
			return errors.New(errors.PhaseDecode, errors.KindInvalidType).
				Path(fmt.Sprintf("type[%d]", i)).Detail("expected func type 0x60, got 0x%02x", form).Build()
		}
		params, err := readValTypes(r)
		if err != nil {
			return err
		}
		results, err := readValTypes(r)
		if err != nil {
			return err
		}
		if len(results) > 1 {
			return errors.New(errors.PhaseDecode, errors.KindUnsupported).
				Path(fmt.Sprintf("type[%d]", i)).Detail("%d results, at most one is supported", len(results)).Build()
		}
		m.Types[i] = FuncType{Params: params, Results: results}
	}
	return nil
}

func readValTypes(r *binary.Reader) ([]ValType, error) {
	n, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	if int(n) > r.Len() {
		return nil, io.ErrUnexpectedEOF
	}
	types := make([]ValType, n)
	for i := range types {
		t, err := readValType(r)
		if err != nil {
			return nil, err
		}
		types[i] = t
	}
	return types, nil
}

func readValType(r *binary.Reader) (ValType, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	t := ValType(b)
	if !t.Valid() {
		return 0, errors.New(errors.PhaseDecode, errors.KindInvalidType).
			Value(b).Detail("unsupported value type 0x%02x", b).Build()
	}
	return t, nil
}

func parseImportSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	if int(count) > r.Len() {
		return io.ErrUnexpectedEOF
	}
	m.Imports = make([]Import, count)
	for i := uint32(0); i < count; i++ {
		module, err := r.ReadName()
		if err != nil {
			return err
		}
		name, err := r.ReadName()
		if err != nil {
			return err
		}
		kind, err := r.ReadByte()
		if err != nil {
			return err
		}

		imp := Import{Module: module, Name: name, Desc: ImportDesc{Kind: kind}}

		switch kind {
		case KindFunc:
			imp.Desc.TypeIdx, err = r.ReadU32()
			if err != nil {
				return err
			}
		case KindTable:
			table, err := readTableType(r)
			if err != nil {
				return err
			}
			imp.Desc.Table = &table
		case KindMemory:
			memory, err := readMemoryType(r)
			if err != nil {
				return err
			}
			imp.Desc.Memory = &memory
		case KindGlobal:
			global, err := readGlobalType(r)
			if err != nil {
				return err
			}
			imp.Desc.Global = &global
		default:
			return errors.New(errors.PhaseDecode, errors.KindInvalidData).
				Path(fmt.Sprintf("import[%d]", i)).Detail("unknown import kind 0x%02x", kind).Build()
		}

		m.Imports[i] = imp
	}
	return nil
}

func parseFunctionSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	if int(count) > r.Len() {
		return io.ErrUnexpectedEOF
	}
	m.Funcs = make([]uint32, count)
	for i := uint32(0); i < count; i++ {
		m.Funcs[i], err = r.ReadU32()
		if err != nil {
			return err
		}
	}
	return nil
}

func parseTableSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	if int(count) > r.Len() {
		return io.ErrUnexpectedEOF
	}
	m.Tables = make([]TableType, count)
	for i := uint32(0); i < count; i++ {
		m.Tables[i], err = readTableType(r)
		if err != nil {
			return err
		}
	}
	return nil
}

func parseMemorySection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	if int(count) > r.Len() {
		return io.ErrUnexpectedEOF
	}
	m.Memories = make([]MemoryType, count)
	for i := uint32(0); i < count; i++ {
		m.Memories[i], err = readMemoryType(r)
		if err != nil {
			return err
		}
	}
	return nil
}

func parseGlobalSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	if int(count) > r.Len() {
		return io.ErrUnexpectedEOF
	}
	m.Globals = make([]Global, count)
	for i := uint32(0); i < count; i++ {
		globalType, err := readGlobalType(r)
		if err != nil {
			return err
		}
		init, err := readInitExpr(r)
		if err != nil {
			return err
		}
		m.Globals[i] = Global{
			Type: globalType,
			Init: init,
		}
	}
	return nil
}

func parseExportSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	if int(count) > r.Len() {
		return io.ErrUnexpectedEOF
	}
	m.Exports = make([]Export, count)
	seen := make(map[string]struct{}, count)
	for i := uint32(0); i < count; i++ {
		name, err := r.ReadName()
		if err != nil {
			return err
		}
		if _, dup := seen[name]; dup {
			return errors.New(errors.PhaseDecode, errors.KindInvalidData).
				Path(fmt.Sprintf("export[%d]", i)).Detail("duplicate export name %q", name).Build()
		}
		seen[name] = struct{}{}
		kind, err := r.ReadByte()
		if err != nil {
			return err
		}
		if kind > KindGlobal {
			return errors.New(errors.PhaseDecode, errors.KindInvalidData).
				Path(fmt.Sprintf("export[%d]", i)).Detail("invalid export kind 0x%02x", kind).Build()
		}
		idx, err := r.ReadU32()
		if err != nil {
			return err
		}
		m.Exports[i] = Export{Name: name, Kind: kind, Idx: idx}
	}
	return nil
}

func parseStartSection(r *binary.Reader, m *Module) error {
	idx, err := r.ReadU32()
	if err != nil {
		return err
	}
	m.Start = &idx
	return nil
}

func parseElementSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	if int(count) > r.Len() {
		return io.ErrUnexpectedEOF
	}
	m.Elements = make([]Element, count)
	for i := uint32(0); i < count; i++ {
		tableIdx, err := r.ReadU32()
		if err != nil {
			return err
		}
		if tableIdx != 0 {
			return errors.New(errors.PhaseDecode, errors.KindUnsupported).
				Path(fmt.Sprintf("element[%d]", i)).Detail("element segment flags/table %d", tableIdx).Build()
		}
		offset, err := readInitExpr(r)
		if err != nil {
			return err
		}
		n, err := r.ReadU32()
		if err != nil {
			return err
		}
		if int(n) > r.Len() {
			return io.ErrUnexpectedEOF
		}
		idxs := make([]uint32, n)
		for j := range idxs {
			idxs[j], err = r.ReadU32()
			if err != nil {
				return err
			}
		}
		m.Elements[i] = Element{TableIdx: tableIdx, Offset: offset, FuncIdxs: idxs}
	}
	return nil
}

func parseCodeSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	if int(count) > r.Len() {
		return io.ErrUnexpectedEOF
	}
	m.Code = make([]FuncBody, count)
	for i := uint32(0); i < count; i++ {
		bodySize, err := r.ReadU32()
		if err != nil {
			return err
		}
		bodyStart := r.Offset()
		bodyData, err := r.ReadBytes(int(bodySize))
		if err != nil {
			return errors.Decode(errors.KindSizeMismatch, fmt.Sprintf("func[%d]", i), bodyStart,
				"body declares %d bytes, only %d remain", bodySize, r.Len())
		}

		br := binary.NewReaderAt(bodyData, bodyStart)

		localCount, err := br.ReadU32()
		if err != nil {
			return err
		}
		var locals []LocalEntry
		var total uint64
		for j := uint32(0); j < localCount; j++ {
			n, err := br.ReadU32()
			if err != nil {
				return err
			}
			total += uint64(n)
			if total > 50000 {
				return errors.New(errors.PhaseDecode, errors.KindOverflow).
					Path(fmt.Sprintf("func[%d]", i)).Detail("too many locals (%d)", total).Build()
			}
			t, err := readValType(br)
			if err != nil {
				return err
			}
			locals = append(locals, LocalEntry{Count: n, ValType: t})
		}

		codeStart := br.Offset()
		code, err := br.ReadRemaining()
		if err != nil {
			return err
		}
		if len(code) == 0 || code[len(code)-1] != OpEnd {
			return errors.Decode(errors.KindSizeMismatch, fmt.Sprintf("func[%d]", i), codeStart,
				"body does not end with the end opcode")
		}

		m.Code[i] = FuncBody{Locals: locals, Code: code, Offset: codeStart}
	}
	return nil
}

func parseDataSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	if int(count) > r.Len() {
		return io.ErrUnexpectedEOF
	}
	m.Data = make([]DataSegment, count)
	for i := uint32(0); i < count; i++ {
		memIdx, err := r.ReadU32()
		if err != nil {
			return err
		}
		if memIdx != 0 {
			return errors.New(errors.PhaseDecode, errors.KindUnsupported).
				Path(fmt.Sprintf("data[%d]", i)).Detail("data segment flags/memory %d", memIdx).Build()
		}

		seg := DataSegment{MemIdx: memIdx}
		seg.Offset, err = readInitExpr(r)
		if err != nil {
			return err
		}

		initLen, err := r.ReadU32()
		if err != nil {
			return err
		}
		seg.Init, err = r.ReadBytes(int(initLen))
		if err != nil {
			return err
		}

		m.Data[i] = seg
	}
	return nil
}

func readLimits(r *binary.Reader) (Limits, error) {
	flag, err := r.ReadByte()
	if err != nil {
		return Limits{}, err
	}
	var l Limits
	switch flag {
	case 0x00:
		l.Min, err = r.ReadU32()
		if err != nil {
			return Limits{}, err
		}
	case 0x01:
		l.Min, err = r.ReadU32()
		if err != nil {
			return Limits{}, err
		}
		maxVal, err := r.ReadU32()
		if err != nil {
			return Limits{}, err
		}
		if maxVal < l.Min {
			return Limits{}, errors.New(errors.PhaseDecode, errors.KindInvalidData).
				Detail("limits maximum %d below minimum %d", maxVal, l.Min).Build()
		}
		l.Max = &maxVal
	default:
		return Limits{}, errors.New(errors.PhaseDecode, errors.KindUnsupported).
			Detail("limits flag 0x%02x", flag).Build()
	}
	return l, nil
}

func readTableType(r *binary.Reader) (TableType, error) {
	elemType, err := r.ReadByte()
	if err != nil {
		return TableType{}, err
	}
	if elemType != ElemFuncRef {
		return TableType{}, errors.New(errors.PhaseDecode, errors.KindInvalidType).
			Detail("table element type 0x%02x, want funcref", elemType).Build()
	}
	limits, err := readLimits(r)
	if err != nil {
		return TableType{}, err
	}
	return TableType{ElemType: elemType, Limits: limits}, nil
}

func readMemoryType(r *binary.Reader) (MemoryType, error) {
	limits, err := readLimits(r)
	if err != nil {
		return MemoryType{}, err
	}
	if limits.Min > MaxPages || (limits.Max != nil && *limits.Max > MaxPages) {
		return MemoryType{}, errors.New(errors.PhaseDecode, errors.KindOverflow).
			Detail("memory size must be at most %d pages", MaxPages).Build()
	}
	return MemoryType{Limits: limits}, nil
}

func readGlobalType(r *binary.Reader) (GlobalType, error) {
	t, err := readValType(r)
	if err != nil {
		return GlobalType{}, err
	}
	mut, err := r.ReadByte()
	if err != nil {
		return GlobalType{}, err
	}
	if mut > 1 {
		return GlobalType{}, errors.New(errors.PhaseDecode, errors.KindInvalidData).
			Detail("invalid mutability flag 0x%02x", mut).Build()
	}
	return GlobalType{ValType: t, Mutable: mut == 1}, nil
}

// readInitExpr reads a constant expression: a single constant or global.get
// instruction followed by end. The result aliases the reader's buffer.
func readInitExpr(r *binary.Reader) ([]byte, error) {
	start := r.Position()
	op, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	switch op {
	case OpI32Const:
		_, err = r.ReadS32()
	case OpI64Const:
		_, err = r.ReadS64()
	case OpF32Const:
		_, err = r.ReadBytes(4)
	case OpF64Const:
		_, err = r.ReadBytes(8)
	case OpGlobalGet:
		_, err = r.ReadU32()
	default:
		return nil, errors.New(errors.PhaseDecode, errors.KindInvalidData).
			Offset(r.Offset()-1).Detail("opcode 0x%02x not allowed in constant expression", op).Build()
	}
	if err != nil {
		return nil, err
	}
	end, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if end != OpEnd {
		return nil, errors.New(errors.PhaseDecode, errors.KindInvalidData).
			Offset(r.Offset() - 1).Detail("constant expression not terminated by end").Build()
	}
	n := r.Position() - start
	if err := r.Reset(start); err != nil {
		return nil, err
	}
	return r.ReadBytes(n)
}
