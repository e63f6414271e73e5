package aml

import "strings"

// LevelType describes the kind of named scope a Level represents.
type LevelType uint8

// The list of supported LevelType values.
const (
	LevelScope LevelType = iota
	LevelDevice
	LevelProcessor
	LevelPowerResource
	LevelThermalZone
)

// String implements fmt.Stringer for LevelType.
func (t LevelType) String() string {
	switch t {
	case LevelScope:
		return "scope"
	case LevelDevice:
		return "device"
	case LevelProcessor:
		return "processor"
	case LevelPowerResource:
		return "power resource"
	case LevelThermalZone:
		return "thermal zone"
	default:
		return "unknown"
	}
}

// ObjectType describes the contents of a named Object.
type ObjectType uint8

// The list of supported ObjectType values.
const (
	ObjectInteger ObjectType = iota
	ObjectString
	ObjectBuffer
	ObjectPackage
	ObjectReference
	ObjectOperationRegion
	ObjectFieldUnit
	ObjectMethod
)

// RegionSpace identifies the address space an OperationRegion lives in.
type RegionSpace uint8

// The region spaces that ReadField/WriteField know how to access.
const (
	RegionSpaceSystemMemory RegionSpace = 0
	RegionSpaceSystemIO     RegionSpace = 1
	RegionSpacePCIConfig    RegionSpace = 2
)

// AccessType is the access width declared by a Field.
type AccessType uint8

// The list of supported AccessType values.
const (
	AccessAny AccessType = iota
	AccessByte
	AccessWord
	AccessDword
	AccessQword
	AccessBuffer
)

// width returns the size in bytes of a single access unit.
func (t AccessType) width() uint64 {
	switch t {
	case AccessWord:
		return 2
	case AccessDword:
		return 4
	case AccessQword:
		return 8
	default:
		return 1
	}
}

// OperationRegion describes a region of some address space declared via
// the OperationRegion operator.
type OperationRegion struct {
	Space  RegionSpace
	Offset uint64
	Length uint64

	// scope is the level that declared the region. PCI config regions
	// resolve their device address relative to it.
	scope *Level
}

// FieldUnit describes a bit range within an OperationRegion.
type FieldUnit struct {
	RegionName string
	BitOffset  uint64
	BitWidth   uint64
	AccessType AccessType

	scope *Level
}

// Object is a named value attached to a Level.
type Object struct {
	Type ObjectType

	Integer uint64

	// String holds the contents of string objects and the target path
	// of references.
	String  string
	Buffer  []byte
	Package []*Object

	Region *OperationRegion
	Field  *FieldUnit

	// ArgCount is the number of arguments accepted by a method.
	ArgCount uint8
}

// Level is a named scope within the ACPI namespace. Children and values are
// kept in declaration order.
type Level struct {
	Type LevelType
	Name string

	parent     *Level
	children   []*Level
	childIndex map[string]*Level
	valueNames []string
	values     map[string]*Object
}

func newLevel(typ LevelType, name string, parent *Level) *Level {
	return &Level{
		Type:       typ,
		Name:       name,
		parent:     parent,
		childIndex: make(map[string]*Level),
		values:     make(map[string]*Object),
	}
}

// Parent returns the enclosing level or nil for the root level.
func (l *Level) Parent() *Level {
	return l.parent
}

// Children returns the child levels in declaration order.
func (l *Level) Children() []*Level {
	return l.children
}

// Child returns the child level with the given name.
func (l *Level) Child(name string) (*Level, bool) {
	child, ok := l.childIndex[name]
	return child, ok
}

// ValueNames returns the names of the values attached to this level in
// declaration order.
func (l *Level) ValueNames() []string {
	return l.valueNames
}

// Value returns the object with the given name.
func (l *Level) Value(name string) (*Object, bool) {
	obj, ok := l.values[name]
	return obj, ok
}

// Path returns the absolute path of this level, e.g. `\_SB_.PCI0`.
func (l *Level) Path() string {
	if l.parent == nil {
		return `\`
	}

	var segs []string
	for cur := l; cur.parent != nil; cur = cur.parent {
		segs = append(segs, cur.Name)
	}

	var b strings.Builder
	b.WriteByte('\\')
	for i := len(segs) - 1; i >= 0; i-- {
		b.WriteString(segs[i])
		if i > 0 {
			b.WriteByte('.')
		}
	}

	return b.String()
}

// addChild returns the existing child with the given name or creates one.
// An existing plain scope is promoted to typ; this happens when a Scope
// operator refers to an object that a later table declares.
func (l *Level) addChild(typ LevelType, name string) *Level {
	if child, ok := l.childIndex[name]; ok {
		if child.Type == LevelScope {
			child.Type = typ
		}
		return child
	}

	child := newLevel(typ, name, l)
	l.children = append(l.children, child)
	l.childIndex[name] = child
	return child
}

// setValue attaches obj to the level, replacing any existing value with
// the same name.
func (l *Level) setValue(name string, obj *Object) {
	if _, exists := l.values[name]; !exists {
		l.valueNames = append(l.valueNames, name)
	}
	l.values[name] = obj
}

// predefinedScopes lists the scopes that exist before any table is loaded.
var predefinedScopes = []string{"_GPE", "_PR_", "_SB_", "_SI_", "_TZ_"}

func newRootLevel() *Level {
	root := newLevel(LevelScope, `\`, nil)
	for _, name := range predefinedScopes {
		root.addChild(LevelScope, name)
	}
	return root
}

// splitPath breaks a name string into its prefix (`\` or a run of `^`) and
// its name segments. Segments shorter than 4 characters are padded with '_'.
func splitPath(expr string) (prefix string, segs []string) {
	i := 0
	switch {
	case strings.HasPrefix(expr, `\`):
		i = 1
	default:
		for i < len(expr) && expr[i] == '^' {
			i++
		}
	}

	prefix, expr = expr[:i], expr[i:]
	if expr == "" {
		return prefix, nil
	}

	segs = strings.Split(expr, ".")
	for j, seg := range segs {
		if len(seg) < 4 {
			segs[j] = seg + strings.Repeat("_", 4-len(seg))
		}
	}

	return prefix, segs
}

// resolveBase returns the level that a name string with the given prefix is
// relative to.
func resolveBase(cur, root *Level, prefix string) *Level {
	if prefix == `\` {
		return root
	}

	for i := 0; i < len(prefix) && cur != nil; i++ {
		cur = cur.parent
	}
	return cur
}

// findLevel resolves expr to a level. Single segment relative names are
// searched for in cur and then in each of its ancestors.
func findLevel(cur, root *Level, expr string) *Level {
	prefix, segs := splitPath(expr)
	base := resolveBase(cur, root, prefix)
	if base == nil {
		return nil
	}

	if prefix == "" && len(segs) == 1 {
		for s := base; s != nil; s = s.parent {
			if child, ok := s.childIndex[segs[0]]; ok {
				return child
			}
		}
		return nil
	}

	for _, seg := range segs {
		child, ok := base.childIndex[seg]
		if !ok {
			return nil
		}
		base = child
	}

	return base
}

// findValue resolves expr to a named object, applying the same search
// rules as findLevel.
func findValue(cur, root *Level, expr string) (*Object, *Level) {
	prefix, segs := splitPath(expr)
	base := resolveBase(cur, root, prefix)
	if base == nil || len(segs) == 0 {
		return nil, nil
	}

	if prefix == "" && len(segs) == 1 {
		for s := base; s != nil; s = s.parent {
			if obj, ok := s.values[segs[0]]; ok {
				return obj, s
			}
		}
		return nil, nil
	}

	for _, seg := range segs[:len(segs)-1] {
		child, ok := base.childIndex[seg]
		if !ok {
			return nil, nil
		}
		base = child
	}

	if obj, ok := base.values[segs[len(segs)-1]]; ok {
		return obj, base
	}
	return nil, nil
}

// resolveParent splits expr into the level that should own the named
// object and the object's own name segment.
func resolveParent(cur, root *Level, expr string) (*Level, string) {
	prefix, segs := splitPath(expr)
	base := resolveBase(cur, root, prefix)
	if base == nil || len(segs) == 0 {
		return nil, ""
	}

	for _, seg := range segs[:len(segs)-1] {
		child, ok := base.childIndex[seg]
		if !ok {
			return nil, ""
		}
		base = child
	}

	return base, segs[len(segs)-1]
}

// ensureLevel resolves expr to a level creating any missing plain scopes
// along the way. Tables may open a Scope for an object that is declared by
// a table that has not been loaded yet.
func ensureLevel(cur, root *Level, expr string) *Level {
	if target := findLevel(cur, root, expr); target != nil {
		return target
	}

	prefix, segs := splitPath(expr)
	base := resolveBase(cur, root, prefix)
	if base == nil {
		return nil
	}

	for _, seg := range segs {
		base = base.addChild(LevelScope, seg)
	}
	return base
}
