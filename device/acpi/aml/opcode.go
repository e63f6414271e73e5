package aml

import "kestrel/kernel"

// Operand kinds used by operandsFor. Each character of an operand list
// describes one operand in encoding order.
const (
	operandTermArg   = 't'
	operandSuperName = 's'
	operandNameStr   = 'n'
	operandByte      = 'b'
	operandWord      = 'w'
	operandDword     = 'd'
)

const (
	opLocal0  = 0x60
	opArg6    = 0x6e
	opDebug   = 0x5b31
	opDataReg = 0x5b88
)

// operandsFor returns the operand list of the statement and expression
// opcodes that the loader does not evaluate. Operand lists are plain
// strings so that decoding them does not allocate.
func operandsFor(op uint16) (string, bool) {
	if op >= opLocal0 && op <= opArg6 {
		return "", true
	}

	switch op {
	case 0x70: // Store
		return "ts", true
	case 0x71, 0x75, 0x76, 0x87, 0x8e: // RefOf Increment Decrement SizeOf ObjectType
		return "s", true
	case 0x72, 0x73, 0x74, 0x77, 0x79, 0x7a, 0x7b, 0x7c, 0x7d, 0x7e, 0x7f, 0x84, 0x85, 0x88, 0x9c:
		// Add Concat Subtract Multiply ShiftLeft ShiftRight And Nand Or
		// Nor Xor ConcatRes Mod Index ToString
		return "tts", true
	case 0x78: // Divide
		return "ttss", true
	case 0x80, 0x81, 0x82, 0x96, 0x97, 0x98, 0x99, 0x9d: // Not FindSetLeftBit FindSetRightBit To* CopyObject
		return "ts", true
	case 0x83, 0x92, 0xa4: // DerefOf LNot Return
		return "t", true
	case 0x86: // Notify
		return "st", true
	case 0x89: // Match
		return "tbtbtt", true
	case 0x8a, 0x8b, 0x8c, 0x8d, 0x8f: // Create{DWord,Word,Byte,Bit,QWord}Field
		return "ttn", true
	case 0x90, 0x91, 0x93, 0x94, 0x95: // LAnd LOr LEqual LGreater LLess
		return "tt", true
	case 0x9e: // Mid
		return "ttts", true
	case 0x9f, 0xa3, 0xa5, 0xcc: // Continue Noop Break BreakPoint
		return "", true
	case 0x5b12: // CondRefOf
		return "ss", true
	case 0x5b13: // CreateField
		return "tttn", true
	case 0x5b1f: // LoadTable
		return "tttttt", true
	case 0x5b20: // Load
		return "ns", true
	case 0x5b21, 0x5b22: // Stall Sleep
		return "t", true
	case 0x5b23: // Acquire
		return "sw", true
	case 0x5b24, 0x5b26, 0x5b27, 0x5b2a: // Signal Reset Release Unload
		return "s", true
	case 0x5b25: // Wait
		return "st", true
	case 0x5b28, 0x5b29: // FromBCD ToBCD
		return "ts", true
	case opDebug, 0x5b33: // Debug Timer
		return "", true
	case 0x5b32: // Fatal
		return "bdt", true
	case opDataReg: // DataTableRegion
		return "nttt", true
	}

	return "", false
}

// skipOperands advances the stream past the operands described by list.
func (c *Context) skipOperands(scope *Level, list string) *kernel.Error {
	var err *kernel.Error

	for i := 0; i < len(list) && err == nil; i++ {
		switch list[i] {
		case operandTermArg:
			err = c.skipTermArg(scope)
		case operandSuperName:
			err = c.skipSuperName(scope)
		case operandNameStr:
			_, err = c.r.readNameString()
		case operandByte:
			_, err = c.r.readNumConstant(1)
		case operandWord:
			_, err = c.r.readNumConstant(2)
		case operandDword:
			_, err = c.r.readNumConstant(4)
		}
	}

	return err
}

// skipTermArg advances the stream past a term argument without evaluating
// it. A name that refers to a known method is followed by the method
// arguments.
func (c *Context) skipTermArg(scope *Level) *kernel.Error {
	next, readErr := c.r.PeekByte()
	if readErr != nil {
		return errTruncatedStream
	}

	if isNameStringStart(next) {
		name, err := c.r.readNameString()
		if err != nil {
			return err
		}

		if obj, _ := findValue(scope, c.root, name); obj != nil && obj.Type == ObjectMethod {
			for i := uint8(0); i < obj.ArgCount; i++ {
				if err = c.skipTermArg(scope); err != nil {
					return err
				}
			}
		}
		return nil
	}

	start := c.r.Offset()
	op, err := c.nextOpcode()
	if err != nil {
		return err
	}

	if list, ok := operandsFor(op); ok {
		return c.skipOperands(scope, list)
	}

	c.r.SetOffset(start)
	_, err = c.parseDataRefObject(scope)
	return err
}

// skipSuperName advances the stream past a SuperName or a Target, which
// may also be the NullName.
func (c *Context) skipSuperName(scope *Level) *kernel.Error {
	next, readErr := c.r.PeekByte()
	switch {
	case readErr != nil:
		return errTruncatedStream
	case next == 0x00:
		c.r.SetOffset(c.r.Offset() + 1)
		return nil
	case isNameStringStart(next):
		_, err := c.r.readNameString()
		return err
	}

	return c.skipTermArg(scope)
}
