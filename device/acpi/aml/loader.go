package aml

import (
	"io"
	"kestrel/kernel"
	"kestrel/kernel/kfmt"
)

var (
	errUnknownOpcode       = &kernel.Error{Module: "aml", Message: "unsupported opcode"}
	errUnresolvedTarget    = &kernel.Error{Module: "aml", Message: "could not resolve name target"}
	errInvalidTermArg      = &kernel.Error{Module: "aml", Message: "term argument does not evaluate to an integer constant"}
	errInvalidFieldElement = &kernel.Error{Module: "aml", Message: "malformed field element"}
)

// Opcodes understood by the namespace loader. Extended opcodes are encoded
// as extOpPrefix followed by the second byte; they are represented here as
// 0x5bXX.
const (
	opZero         = 0x00
	opOne          = 0x01
	opAlias        = 0x06
	opName         = 0x08
	opBytePrefix   = 0x0a
	opWordPrefix   = 0x0b
	opDwordPrefix  = 0x0c
	opStringPrefix = 0x0d
	opQwordPrefix  = 0x0e
	opScope        = 0x10
	opBuffer       = 0x11
	opPackage      = 0x12
	opVarPackage   = 0x13
	opMethod       = 0x14
	opExternal     = 0x15
	extOpPrefix    = 0x5b
	opIf           = 0xa0
	opElse         = 0xa1
	opWhile        = 0xa2
	opOnes         = 0xff
	opMutex        = 0x5b01
	opEvent        = 0x5b02
	opRevision     = 0x5b30
	opOpRegion     = 0x5b80
	opField        = 0x5b81
	opDevice       = 0x5b82
	opProcessor    = 0x5b83
	opPowerRes     = 0x5b84
	opThermalZone  = 0x5b85
	opIndexField   = 0x5b86
	opBankField    = 0x5b87

	// revisionValue is the value returned by the Revision operator.
	revisionValue   = 2
	onesLegacyValue = 0xffffffff
	maxBufferSize   = 64 * 1024
)

// Context holds the ACPI namespace built from the loaded definition blocks
// and provides access to field units through a Handler.
type Context struct {
	handler   Handler
	errWriter io.Writer
	root      *Level

	r         streamReader
	tableName string
	ones      uint64
}

// NewContext returns a Context with an empty namespace containing only the
// predefined root scopes. Parse errors are reported to errWriter.
func NewContext(h Handler, errWriter io.Writer) *Context {
	return &Context{
		handler:   h,
		errWriter: errWriter,
		root:      newRootLevel(),
	}
}

// Root returns the root level of the namespace.
func (c *Context) Root() *Level {
	return c.root
}

// ParseTable parses the AML definition block of the named table and merges
// its objects into the namespace. The stream contains the table contents
// that follow the SDT header. Tables with a revision lower than 2 use 32-bit
// integers.
//
// An unsupported opcode inside a named level discards the rest of that
// level and parsing resumes after it. Any other error stops the table;
// objects declared before that point are kept in the namespace.
func (c *Context) ParseTable(name string, revision uint8, stream []byte) *kernel.Error {
	c.r = streamReader{data: stream}
	c.tableName = name
	c.ones = ^uint64(0)
	if revision < 2 {
		c.ones = onesLegacyValue
	}

	if err := c.parseTermList(c.root, uint32(len(stream))); err != nil {
		kfmt.Fprintf(c.errWriter, "[table: %s, offset: %d] %s\n", name, c.r.Offset(), err.Message)
		return err
	}

	return nil
}

// FindLevel returns the level at the given absolute path or nil.
func (c *Context) FindLevel(path string) *Level {
	return findLevel(c.root, c.root, path)
}

// Lookup returns the object at the given absolute path.
func (c *Context) Lookup(path string) (*Object, bool) {
	obj, _ := findValue(c.root, c.root, path)
	return obj, obj != nil
}

// Visitor is invoked by Traverse for each namespace level. Returning false
// skips the children of the level; returning an error aborts the traversal.
type Visitor func(level *Level) (descend bool, err *kernel.Error)

// Traverse performs a depth-first pre-order walk of the namespace.
func (c *Context) Traverse(visitor Visitor) *kernel.Error {
	return traverse(c.root, visitor)
}

func traverse(level *Level, visitor Visitor) *kernel.Error {
	descend, err := visitor(level)
	if err != nil || !descend {
		return err
	}

	for _, child := range level.children {
		if err = traverse(child, visitor); err != nil {
			return err
		}
	}

	return nil
}

func (c *Context) nextOpcode() (uint16, *kernel.Error) {
	next, err := c.r.ReadByte()
	if err != nil {
		return 0, errTruncatedStream
	}

	if next != extOpPrefix {
		return uint16(next), nil
	}

	ext, err := c.r.ReadByte()
	if err != nil {
		return 0, errTruncatedStream
	}

	return uint16(extOpPrefix)<<8 | uint16(ext), nil
}

func (c *Context) parseTermList(scope *Level, end uint32) *kernel.Error {
	for c.r.Offset() < end {
		if err := c.parseTermObj(scope); err != nil {
			return err
		}
	}

	return nil
}

func (c *Context) parseTermObj(scope *Level) *kernel.Error {
	op, err := c.nextOpcode()
	if err != nil {
		return err
	}

	switch op {
	case opScope, opDevice, opThermalZone:
		return c.parseScopedLevel(scope, op, 0)
	case opProcessor:
		// ProcID, PblkAddr (dword) and PblkLen
		return c.parseScopedLevel(scope, op, 6)
	case opPowerRes:
		// SystemLevel and ResourceOrder (word)
		return c.parseScopedLevel(scope, op, 3)
	case opName:
		return c.parseName(scope)
	case opOpRegion:
		return c.parseOpRegion(scope)
	case opField:
		return c.parseField(scope)
	case opMethod:
		return c.parseMethod(scope)
	case opIf, opWhile, opElse:
		return c.parseConditional(scope, op)
	case opIndexField, opBankField:
		end, err := c.r.readPkgLength()
		if err != nil {
			return err
		}
		c.r.SetOffset(end)
		return nil
	case opExternal:
		// NameString ObjectType ArgumentCount
		if _, err = c.r.readNameString(); err != nil {
			return err
		}
		_, err = c.r.readNumConstant(2)
		return err
	case opAlias:
		return c.parseAlias(scope)
	case opMutex:
		if _, err = c.r.readNameString(); err != nil {
			return err
		}
		_, err = c.r.readNumConstant(1)
		return err
	case opEvent:
		_, err = c.r.readNameString()
		return err
	}

	if list, ok := operandsFor(op); ok {
		return c.skipOperands(scope, list)
	}

	rewind := c.r.Offset() - 1
	if op > 0xff {
		rewind--
	}
	c.r.SetOffset(rewind)

	// Method invocations may appear as statements.
	if next, _ := c.r.PeekByte(); isNameStringStart(next) {
		return c.skipTermArg(scope)
	}

	return errUnknownOpcode
}

// parseConditional loads the body of an If, Else or While block into the
// enclosing scope. Predicates are not evaluated so the declarations of
// every branch end up in the namespace.
func (c *Context) parseConditional(scope *Level, op uint16) *kernel.Error {
	end, err := c.r.readPkgLength()
	if err != nil {
		return err
	}

	if op != opElse {
		if err = c.skipTermArg(scope); err != nil {
			return err
		}

		if c.r.Offset() > end {
			return errTruncatedStream
		}
	}

	if err = c.parseTermList(scope, end); err != nil {
		return err
	}

	c.r.SetOffset(end)
	return nil
}

// parseScopedLevel handles the operators that open a new namespace level.
// skip is the number of fixed-length argument bytes that follow the name.
func (c *Context) parseScopedLevel(scope *Level, op uint16, skip uint32) *kernel.Error {
	end, err := c.r.readPkgLength()
	if err != nil {
		return err
	}

	name, err := c.r.readNameString()
	if err != nil {
		return err
	}

	var target *Level
	if op == opScope {
		target = ensureLevel(scope, c.root, name)
	} else if parent, seg := resolveParent(scope, c.root, name); parent != nil {
		target = parent.addChild(levelTypeFor(op), seg)
	}

	if target == nil {
		return errUnresolvedTarget
	}

	if c.r.Offset()+skip > end {
		return errTruncatedStream
	}
	c.r.SetOffset(c.r.Offset() + skip)

	// An unsupported opcode only discards the remainder of this level.
	switch err = c.parseTermList(target, end); err {
	case nil:
	case errUnknownOpcode:
		kfmt.Fprintf(c.errWriter, "[table: %s, offset: %d] %s; skipping rest of %s\n", c.tableName, c.r.Offset(), err.Message, target.Path())
	default:
		return err
	}

	c.r.SetOffset(end)
	return nil
}

func levelTypeFor(op uint16) LevelType {
	switch op {
	case opDevice:
		return LevelDevice
	case opProcessor:
		return LevelProcessor
	case opPowerRes:
		return LevelPowerResource
	case opThermalZone:
		return LevelThermalZone
	default:
		return LevelScope
	}
}

// declare attaches obj to the level that owns name.
func (c *Context) declare(scope *Level, name string, obj *Object) *kernel.Error {
	parent, seg := resolveParent(scope, c.root, name)
	if parent == nil {
		return errUnresolvedTarget
	}

	parent.setValue(seg, obj)
	return nil
}

func (c *Context) parseName(scope *Level) *kernel.Error {
	name, err := c.r.readNameString()
	if err != nil {
		return err
	}

	obj, err := c.parseDataRefObject(scope)
	if err != nil {
		return err
	}

	return c.declare(scope, name, obj)
}

func (c *Context) parseAlias(scope *Level) *kernel.Error {
	source, err := c.r.readNameString()
	if err != nil {
		return err
	}

	alias, err := c.r.readNameString()
	if err != nil {
		return err
	}

	return c.declare(scope, alias, &Object{Type: ObjectReference, String: source})
}

func (c *Context) parseMethod(scope *Level) *kernel.Error {
	end, err := c.r.readPkgLength()
	if err != nil {
		return err
	}

	name, err := c.r.readNameString()
	if err != nil {
		return err
	}

	flags, err := c.r.readNumConstant(1)
	if err != nil {
		return err
	}

	c.r.SetOffset(end)
	return c.declare(scope, name, &Object{Type: ObjectMethod, ArgCount: uint8(flags & 0x7)})
}

func (c *Context) parseOpRegion(scope *Level) *kernel.Error {
	name, err := c.r.readNameString()
	if err != nil {
		return err
	}

	space, err := c.r.readNumConstant(1)
	if err != nil {
		return err
	}

	offset, err := c.parseIntegerTermArg(scope)
	if err != nil {
		return err
	}

	length, err := c.parseIntegerTermArg(scope)
	if err != nil {
		return err
	}

	parent, seg := resolveParent(scope, c.root, name)
	if parent == nil {
		return errUnresolvedTarget
	}

	parent.setValue(seg, &Object{
		Type: ObjectOperationRegion,
		Region: &OperationRegion{
			Space:  RegionSpace(space),
			Offset: offset,
			Length: length,
			scope:  parent,
		},
	})
	return nil
}

func (c *Context) parseField(scope *Level) *kernel.Error {
	end, err := c.r.readPkgLength()
	if err != nil {
		return err
	}

	regionName, err := c.r.readNameString()
	if err != nil {
		return err
	}

	flags, err := c.r.readNumConstant(1)
	if err != nil {
		return err
	}

	var (
		bitOffset  uint64
		accessType = AccessType(flags & 0xf)
	)

	for c.r.Offset() < end {
		next, _ := c.r.PeekByte()
		switch next {
		case 0x00: // ReservedField
			c.r.SetOffset(c.r.Offset() + 1)
			width, err := c.r.readRawPkgLength()
			if err != nil {
				return err
			}
			bitOffset += uint64(width)
		case 0x01: // AccessField := AccessType AccessAttrib
			c.r.SetOffset(c.r.Offset() + 1)
			typ, err := c.r.readNumConstant(2)
			if err != nil {
				return err
			}
			accessType = AccessType(typ & 0xf)
		case 0x02: // ConnectField := NameString | BufferData
			c.r.SetOffset(c.r.Offset() + 1)
			if b, _ := c.r.PeekByte(); b == opBuffer {
				c.r.SetOffset(c.r.Offset() + 1)
				bufEnd, err := c.r.readPkgLength()
				if err != nil {
					return err
				}
				c.r.SetOffset(bufEnd)
			} else if _, err := c.r.readNameString(); err != nil {
				return err
			}
		case 0x03: // ExtendedAccessField := AccessType ExtendedAccessAttrib AccessLength
			c.r.SetOffset(c.r.Offset() + 1)
			typ, err := c.r.readNumConstant(3)
			if err != nil {
				return err
			}
			accessType = AccessType(typ & 0xf)
		default:
			seg, err := c.r.readNameSeg()
			if err != nil {
				return errInvalidFieldElement
			}

			width, err := c.r.readRawPkgLength()
			if err != nil {
				return err
			}

			scope.setValue(seg, &Object{
				Type: ObjectFieldUnit,
				Field: &FieldUnit{
					RegionName: regionName,
					BitOffset:  bitOffset,
					BitWidth:   uint64(width),
					AccessType: accessType,
					scope:      scope,
				},
			})
			bitOffset += uint64(width)
		}
	}

	c.r.SetOffset(end)
	return nil
}

// parseIntegerTermArg evaluates a term argument that must reduce to an
// integer without executing any code: either a constant or a name that
// refers to an integer object.
func (c *Context) parseIntegerTermArg(scope *Level) (uint64, *kernel.Error) {
	next, readErr := c.r.PeekByte()
	if readErr != nil {
		return 0, errTruncatedStream
	}

	if isNameStringStart(next) {
		name, err := c.r.readNameString()
		if err != nil {
			return 0, err
		}

		obj, _ := findValue(scope, c.root, name)
		if obj == nil || obj.Type != ObjectInteger {
			return 0, errInvalidTermArg
		}
		return obj.Integer, nil
	}

	obj, err := c.parseDataRefObject(scope)
	if err != nil {
		return 0, err
	}

	if obj.Type != ObjectInteger {
		return 0, errInvalidTermArg
	}
	return obj.Integer, nil
}

// parseDataRefObject parses a constant data object or a name reference.
func (c *Context) parseDataRefObject(scope *Level) (*Object, *kernel.Error) {
	next, readErr := c.r.PeekByte()
	if readErr != nil {
		return nil, errTruncatedStream
	}

	if isNameStringStart(next) {
		name, err := c.r.readNameString()
		if err != nil {
			return nil, err
		}
		return &Object{Type: ObjectReference, String: name}, nil
	}

	op, err := c.nextOpcode()
	if err != nil {
		return nil, err
	}

	switch op {
	case opZero:
		return &Object{Type: ObjectInteger}, nil
	case opOne:
		return &Object{Type: ObjectInteger, Integer: 1}, nil
	case opOnes:
		return &Object{Type: ObjectInteger, Integer: c.ones}, nil
	case opRevision:
		return &Object{Type: ObjectInteger, Integer: revisionValue}, nil
	case opBytePrefix, opWordPrefix, opDwordPrefix, opQwordPrefix:
		val, err := c.r.readNumConstant(constWidth(op))
		if err != nil {
			return nil, err
		}
		return &Object{Type: ObjectInteger, Integer: val}, nil
	case opStringPrefix:
		str, err := c.r.readString()
		if err != nil {
			return nil, err
		}
		return &Object{Type: ObjectString, String: str}, nil
	case opBuffer:
		return c.parseBuffer(scope)
	case opPackage, opVarPackage:
		return c.parsePackage(scope, op)
	}

	c.r.SetOffset(c.r.Offset() - 1)
	if op > 0xff {
		c.r.SetOffset(c.r.Offset() - 1)
	}
	return nil, errUnknownOpcode
}

// constWidth returns the size of the value following a numeric prefix.
func constWidth(op uint16) uint8 {
	switch op {
	case opWordPrefix:
		return 2
	case opDwordPrefix:
		return 4
	case opQwordPrefix:
		return 8
	default:
		return 1
	}
}

func (c *Context) parseBuffer(scope *Level) (*Object, *kernel.Error) {
	end, err := c.r.readPkgLength()
	if err != nil {
		return nil, err
	}

	size, err := c.parseIntegerTermArg(scope)
	if err != nil {
		return nil, err
	}

	initLen := uint64(end - c.r.Offset())
	switch {
	case size > maxBufferSize:
		return nil, errInvalidTermArg
	case size < initLen:
		size = initLen
	}

	// The stream overlays a temporary table mapping so the contents are
	// copied out. Any bytes beyond the initializer are zero.
	buf := make([]byte, size)
	copy(buf, c.r.data[c.r.Offset():end])
	c.r.SetOffset(end)

	return &Object{Type: ObjectBuffer, Buffer: buf}, nil
}

func (c *Context) parsePackage(scope *Level, op uint16) (*Object, *kernel.Error) {
	end, err := c.r.readPkgLength()
	if err != nil {
		return nil, err
	}

	var numElements uint64
	if op == opPackage {
		numElements, err = c.r.readNumConstant(1)
	} else {
		numElements, err = c.parseIntegerTermArg(scope)
	}
	if err != nil {
		return nil, err
	}

	pkg := &Object{Type: ObjectPackage, Package: make([]*Object, 0, numElements)}
	for c.r.Offset() < end {
		elem, err := c.parseDataRefObject(scope)
		if err != nil {
			return nil, err
		}
		pkg.Package = append(pkg.Package, elem)
	}

	c.r.SetOffset(end)
	return pkg, nil
}
