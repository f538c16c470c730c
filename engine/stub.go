package engine

import (
	"bytes"
	"strconv"

	"github.com/tetratelabs/wazero/api"

	nativebridge "github.com/wippyai/native-bridge"
	"github.com/wippyai/native-bridge/entry"
)

// wasm binary format constants used by call-site stubs
const (
	wasmMagic   = "\x00asm"
	wasmVersion = "\x01\x00\x00\x00"

	sectionType     byte = 1
	sectionImport   byte = 2
	sectionFunction byte = 3
	sectionExport   byte = 7
	sectionCode     byte = 10

	funcTypeByte byte = 0x60
	externFunc   byte = 0x00

	opEnd      byte = 0x0B
	opCall     byte = 0x10
	opLocalGet byte = 0x20
	opI64Const byte = 0x42

	valI64 byte = 0x7E
	valF64 byte = 0x7C
)

const (
	// stubExport is the export name of a call-site stub.
	stubExport = "call"

	safepointExport     = "safepoint"
	interpretCallPrefix = "InterpretCall."
)

// interpretCallExport names the host-module view of the interpreted call
// entry for one signature shape: "InterpretCall.i2" takes a target address
// and two words, "InterpretCall.f1" a target address and one double.
func interpretCallExport(class nativebridge.RegisterClass, argc int) string {
	c := "i"
	if class == nativebridge.ClassFloat {
		c = "f"
	}
	return interpretCallPrefix + c + strconv.Itoa(argc)
}

func valType(t api.ValueType) byte {
	if t == api.ValueTypeF64 {
		return valF64
	}
	return valI64
}

type funcType struct {
	params  []api.ValueType
	results []api.ValueType
}

// signature is the wasm signature of a direct call to d.
func signature(d *entry.Descriptor) funcType {
	vt := d.Class().ValueType()
	params := make([]api.ValueType, d.ArgumentCount())
	for i := range params {
		params[i] = vt
	}
	return funcType{params: params, results: []api.ValueType{vt}}
}

// interpretSignature is signature(d) with the leading target address.
func interpretSignature(d *entry.Descriptor) funcType {
	s := signature(d)
	s.params = append([]api.ValueType{api.ValueTypeI64}, s.params...)
	return s
}

type stubImport struct {
	name    string
	typeIdx uint32
}

// stubPlan is the ABI tuple a call site encodes.
type stubPlan struct {
	host    string
	target  string
	types   []funcType
	imports []stubImport
	// address is pushed as the leading argument when non-zero.
	address  nativebridge.Address
	argc     int
	stubType uint32
}

// planStub derives the stub layout for a call to d through entryPoint.
// Non-leaf calls poll the safepoint first; calls redirected to the
// interpreted entry pass the real routine address ahead of the arguments.
func planStub(host string, d *entry.Descriptor, entryPoint nativebridge.Address) stubPlan {
	s := stubPlan{host: host, argc: d.ArgumentCount()}

	s.types = append(s.types, signature(d))
	s.stubType = 0

	if !d.IsLeaf() {
		s.types = append(s.types, funcType{})
		s.imports = append(s.imports, stubImport{name: safepointExport, typeIdx: uint32(len(s.types) - 1)})
	}

	if entryPoint == entry.InterpretCallEntry() {
		s.types = append(s.types, interpretSignature(d))
		s.target = interpretCallExport(d.Class(), d.ArgumentCount())
		s.address = d.Address()
		s.imports = append(s.imports, stubImport{name: s.target, typeIdx: uint32(len(s.types) - 1)})
	} else {
		s.target = d.Name()
		s.imports = append(s.imports, stubImport{name: s.target, typeIdx: s.stubType})
	}
	return s
}

// encode renders the stub as a wasm module exporting one function, "call".
func (s stubPlan) encode() []byte {
	var out bytes.Buffer
	out.WriteString(wasmMagic)
	out.WriteString(wasmVersion)

	var sec bytes.Buffer
	writeLEB128u(&sec, uint32(len(s.types)))
	for _, ft := range s.types {
		sec.WriteByte(funcTypeByte)
		writeValTypes(&sec, ft.params)
		writeValTypes(&sec, ft.results)
	}
	writeSection(&out, sectionType, sec.Bytes())

	sec.Reset()
	writeLEB128u(&sec, uint32(len(s.imports)))
	for _, imp := range s.imports {
		writeName(&sec, s.host)
		writeName(&sec, imp.name)
		sec.WriteByte(externFunc)
		writeLEB128u(&sec, imp.typeIdx)
	}
	writeSection(&out, sectionImport, sec.Bytes())

	sec.Reset()
	writeLEB128u(&sec, 1)
	writeLEB128u(&sec, s.stubType)
	writeSection(&out, sectionFunction, sec.Bytes())

	numImports := uint32(len(s.imports))

	sec.Reset()
	writeLEB128u(&sec, 1)
	writeName(&sec, stubExport)
	sec.WriteByte(externFunc)
	writeLEB128u(&sec, numImports)
	writeSection(&out, sectionExport, sec.Bytes())

	var body bytes.Buffer
	writeLEB128u(&body, 0) // no locals
	if len(s.imports) > 1 {
		body.WriteByte(opCall)
		writeLEB128u(&body, 0)
	}
	if s.address != 0 {
		body.WriteByte(opI64Const)
		writeLEB128s64(&body, int64(s.address))
	}
	for i := 0; i < s.argc; i++ {
		body.WriteByte(opLocalGet)
		writeLEB128u(&body, uint32(i))
	}
	body.WriteByte(opCall)
	writeLEB128u(&body, numImports-1)
	body.WriteByte(opEnd)

	sec.Reset()
	writeLEB128u(&sec, 1)
	writeLEB128u(&sec, uint32(body.Len()))
	sec.Write(body.Bytes())
	writeSection(&out, sectionCode, sec.Bytes())

	return out.Bytes()
}

func writeSection(w *bytes.Buffer, id byte, data []byte) {
	w.WriteByte(id)
	writeLEB128u(w, uint32(len(data)))
	w.Write(data)
}

func writeValTypes(w *bytes.Buffer, types []api.ValueType) {
	writeLEB128u(w, uint32(len(types)))
	for _, t := range types {
		w.WriteByte(valType(t))
	}
}
