// Package compiler implements smog's single-pass compiler: a Pratt
// parser that emits bytecode directly as it recognizes each expression
// and statement, with no intervening AST. Variable resolution (locals,
// up-values, globals), scope tracking, and jump back-patching all happen
// inline during this one pass over the token stream.
//
// Architecture:
//
//	Lexer -> Compiler (Pratt parser + codegen) -> *value.ObjFunction
package compiler

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/kristofer/smog/pkg/bytecode"
	"github.com/kristofer/smog/pkg/lexer"
	"github.com/kristofer/smog/pkg/value"
	"github.com/kristofer/smog/pkg/vm"
)

// precedence orders how tightly an infix operator binds; a lower value
// binds loosely (more expression hangs off one side), matching clox's
// Precedence enum.
type precedence int

const (
	precNone       precedence = iota
	precAssignment            // =
	precOr                    // or
	precAnd                   // and
	precEquality              // == !=
	precComparison            // < > <= >=
	precTerm                  // + -
	precFactor                // * /
	precUnary                 // ! -
	precCall                  // . ()
	precPrimary
)

type parseFn func(c *Compiler, canAssign bool)

type rule struct {
	prefix     parseFn
	infix      parseFn
	precedence precedence
}

var parseRules = map[lexer.TokenType]rule{
	lexer.TokenLeftParen:    {(*Compiler).grouping, (*Compiler).call, precCall},
	lexer.TokenDot:          {nil, (*Compiler).dot, precCall},
	lexer.TokenMinus:        {(*Compiler).unary, (*Compiler).binary, precTerm},
	lexer.TokenPlus:         {nil, (*Compiler).binary, precTerm},
	lexer.TokenSlash:        {nil, (*Compiler).binary, precFactor},
	lexer.TokenStar:         {nil, (*Compiler).binary, precFactor},
	lexer.TokenBang:         {(*Compiler).unary, nil, precNone},
	lexer.TokenBangEqual:    {nil, (*Compiler).binary, precEquality},
	lexer.TokenEqualEqual:   {nil, (*Compiler).binary, precEquality},
	lexer.TokenGreater:      {nil, (*Compiler).binary, precComparison},
	lexer.TokenGreaterEqual: {nil, (*Compiler).binary, precComparison},
	lexer.TokenLess:         {nil, (*Compiler).binary, precComparison},
	lexer.TokenLessEqual:    {nil, (*Compiler).binary, precComparison},
	lexer.TokenIdentifier:   {(*Compiler).variable, nil, precNone},
	lexer.TokenString:       {(*Compiler).string_, nil, precNone},
	lexer.TokenNumber:       {(*Compiler).number, nil, precNone},
	lexer.TokenAnd:          {nil, (*Compiler).and_, precAnd},
	lexer.TokenFalse:        {(*Compiler).literal, nil, precNone},
	lexer.TokenNil:          {(*Compiler).literal, nil, precNone},
	lexer.TokenOr:           {nil, (*Compiler).or_, precOr},
	lexer.TokenSuper:        {(*Compiler).super_, nil, precNone},
	lexer.TokenThis:         {(*Compiler).this_, nil, precNone},
	lexer.TokenTrue:         {(*Compiler).literal, nil, precNone},
}

func ruleFor(t lexer.TokenType) rule {
	return parseRules[t] // zero value (all nil, precNone) for tokens with no rule
}

// functionType distinguishes the kinds of function bodies the compiler
// builds, each with slightly different codegen rules: a bare function
// can't see "this"; an initializer's implicit return is the instance,
// not nil; the top-level script can't use "return" at all.
type functionType int

const (
	typeFunction functionType = iota
	typeInitializer
	typeMethod
	typeScript
)

// local is a block-scoped variable the compiler has reserved a stack
// slot for. depth == -1 marks a local that's been declared but not yet
// defined (its initializer is still being compiled) — the sentinel that
// rejects `var a = a;`.
type local struct {
	name       lexer.Token
	depth      int
	isCaptured bool
}

type upvalueRef struct {
	index   byte
	isLocal bool
}

// funcState is one function's worth of compile-time bookkeeping: its
// in-progress ObjFunction, the locals currently in scope, and the
// up-values it has had to close over so far. funcStates form a chain
// through enclosing that mirrors the lexical nesting of function
// declarations — a nested function's enclosing is the function
// containing it, all the way out to the implicit top-level script.
type funcState struct {
	enclosing  *funcState
	function   *value.ObjFunction
	kind       functionType
	locals     []local
	upvalues   []upvalueRef
	scopeDepth int
}

// classState tracks the class currently being compiled (if any), chained
// through enclosing for nested class declarations, so "this" and "super"
// can be rejected outside a class body and "super" can be rejected in a
// class with no superclass.
type classState struct {
	enclosing     *classState
	hasSuperclass bool
}

// Compiler holds all single-pass compilation state: the token stream
// cursor, error/panic-mode bookkeeping, and the chain of in-progress
// functions and classes. It implements vm.Compiling so the VM's
// collector can root whatever ObjFunctions are still under construction
// during compilation.
type Compiler struct {
	vm     *vm.VM
	lex    *lexer.Lexer
	stderr io.Writer

	current lexer.Token
	prev    lexer.Token

	hadError  bool
	panicMode bool

	fn    *funcState
	class *classState
}

// Compile compiles source into the implicit top-level script function,
// reporting syntax errors to os.Stderr. ok is false if any error was
// reported; fn is still returned (possibly partially built) so callers
// that want to inspect it for diagnostics can.
func Compile(machine *vm.VM, source string) (fn *value.ObjFunction, ok bool) {
	return CompileTo(machine, source, os.Stderr)
}

// CompileTo is Compile with error output redirected to stderr, used by
// tests that want to assert on the exact error message text.
func CompileTo(machine *vm.VM, source string, stderr io.Writer) (*value.ObjFunction, bool) {
	c := &Compiler{vm: machine, lex: lexer.New(source), stderr: stderr}
	c.fn = &funcState{kind: typeScript, function: machine.NewFunction()}
	c.fn.locals = append(c.fn.locals, local{})

	machine.SetCompiling(c)
	defer machine.SetCompiling(nil)

	c.advance()
	for !c.match(lexer.TokenEOF) {
		c.declaration()
	}
	fn := c.endCompiler()
	return fn, !c.hadError
}

// MarkRoots implements vm.Compiling: every ObjFunction still under
// construction (the whole enclosing chain, not just the innermost one)
// must survive a collection triggered mid-compile, even though none of
// them are reachable from the VM stack yet.
func (c *Compiler) MarkRoots(mark func(value.Value)) {
	for fs := c.fn; fs != nil; fs = fs.enclosing {
		mark(value.FromObj(fs.function))
	}
}

// --- token stream -----------------------------------------------------

func (c *Compiler) advance() {
	c.prev = c.current
	for {
		c.current = c.lex.NextToken()
		if c.current.Type != lexer.TokenError {
			break
		}
		c.errorAtCurrent(c.current.Lexeme)
	}
}

func (c *Compiler) check(t lexer.TokenType) bool { return c.current.Type == t }

func (c *Compiler) match(t lexer.TokenType) bool {
	if !c.check(t) {
		return false
	}
	c.advance()
	return true
}

func (c *Compiler) consume(t lexer.TokenType, message string) {
	if c.current.Type == t {
		c.advance()
		return
	}
	c.errorAtCurrent(message)
}

// --- error reporting ----------------------------------------------------

func (c *Compiler) errorAt(tok lexer.Token, message string) {
	if c.panicMode {
		return
	}
	c.panicMode = true
	fmt.Fprintf(c.stderr, "[line %d] Error", tok.Line)
	switch tok.Type {
	case lexer.TokenEOF:
		fmt.Fprint(c.stderr, " at end")
	case lexer.TokenError:
		// message itself already describes the problem.
	default:
		fmt.Fprintf(c.stderr, " at '%s'", tok.Lexeme)
	}
	fmt.Fprintf(c.stderr, ": %s\n", message)
	c.hadError = true
}

func (c *Compiler) error(message string)          { c.errorAt(c.prev, message) }
func (c *Compiler) errorAtCurrent(message string) { c.errorAt(c.current, message) }

// --- bytecode emission --------------------------------------------------

func (c *Compiler) chunk() *value.Chunk { return c.fn.function.Chunk }

func (c *Compiler) emitByte(b byte) { c.chunk().Write(b, c.prev.Line) }

func (c *Compiler) emitOp(op bytecode.Opcode) { c.emitByte(byte(op)) }

func (c *Compiler) emitOpByte(op bytecode.Opcode, b byte) {
	c.emitByte(byte(op))
	c.emitByte(b)
}

// emitJump writes op followed by a two-byte placeholder offset, returning
// the placeholder's position so patchJump can fill it in once the jump
// target is known.
func (c *Compiler) emitJump(op bytecode.Opcode) int {
	c.emitOp(op)
	c.emitByte(0xff)
	c.emitByte(0xff)
	return len(c.chunk().Code) - 2
}

func (c *Compiler) patchJump(offset int) {
	jump := len(c.chunk().Code) - offset - 2
	if jump > 0xffff {
		c.error("Too much code to jump over.")
	}
	c.chunk().Code[offset] = byte((jump >> 8) & 0xff)
	c.chunk().Code[offset+1] = byte(jump & 0xff)
}

func (c *Compiler) emitLoop(loopStart int) {
	c.emitOp(bytecode.OpLoop)
	offset := len(c.chunk().Code) - loopStart + 2
	if offset > 0xffff {
		c.error("Loop body too large.")
	}
	c.emitByte(byte((offset >> 8) & 0xff))
	c.emitByte(byte(offset & 0xff))
}

func (c *Compiler) emitReturn() {
	if c.fn.kind == typeInitializer {
		c.emitOpByte(bytecode.OpGetLocal, 0) // implicit `return this;`
	} else {
		c.emitOp(bytecode.OpNil)
	}
	c.emitOp(bytecode.OpReturn)
}

func (c *Compiler) makeConstant(v value.Value) byte {
	idx := c.chunk().AddConstant(v)
	if idx >= value.MaxConstants {
		c.error("Too many constants in one chunk.")
		return 0
	}
	return byte(idx)
}

func (c *Compiler) emitConstant(v value.Value) {
	c.emitOpByte(bytecode.OpConstant, c.makeConstant(v))
}

func (c *Compiler) endCompiler() *value.ObjFunction {
	c.emitReturn()
	fn := c.fn.function
	c.fn = c.fn.enclosing
	return fn
}

func (c *Compiler) beginScope() { c.fn.scopeDepth++ }

func (c *Compiler) endScope() {
	c.fn.scopeDepth--
	for len(c.fn.locals) > 0 && c.fn.locals[len(c.fn.locals)-1].depth > c.fn.scopeDepth {
		if c.fn.locals[len(c.fn.locals)-1].isCaptured {
			c.emitOp(bytecode.OpCloseUpvalue)
		} else {
			c.emitOp(bytecode.OpPop)
		}
		c.fn.locals = c.fn.locals[:len(c.fn.locals)-1]
	}
}

// --- variables: locals, up-values, globals ------------------------------

func (c *Compiler) identifierConstant(name lexer.Token) byte {
	return c.makeConstant(value.FromObj(c.vm.InternString(name.Lexeme)))
}

func (c *Compiler) addLocal(name lexer.Token) {
	if len(c.fn.locals) >= 256 {
		c.error("Too many local variables in function.")
		return
	}
	c.fn.locals = append(c.fn.locals, local{name: name, depth: -1})
}

func (c *Compiler) declareVariable() {
	if c.fn.scopeDepth == 0 {
		return
	}
	name := c.prev
	for i := len(c.fn.locals) - 1; i >= 0; i-- {
		l := c.fn.locals[i]
		if l.depth != -1 && l.depth < c.fn.scopeDepth {
			break
		}
		if l.name.Lexeme == name.Lexeme {
			c.error("Already a variable with this name in this scope.")
		}
	}
	c.addLocal(name)
}

// parseVariable consumes an identifier and, for a local, reserves its
// stack slot; for a global, returns the constant-pool index of its name
// (resolved by the OP_*_GLOBAL opcodes at run time).
func (c *Compiler) parseVariable(errMessage string) byte {
	c.consume(lexer.TokenIdentifier, errMessage)
	c.declareVariable()
	if c.fn.scopeDepth > 0 {
		return 0
	}
	return c.identifierConstant(c.prev)
}

func (c *Compiler) markInitialized() {
	if c.fn.scopeDepth == 0 {
		return
	}
	c.fn.locals[len(c.fn.locals)-1].depth = c.fn.scopeDepth
}

func (c *Compiler) defineVariable(global byte) {
	if c.fn.scopeDepth > 0 {
		c.markInitialized()
		return
	}
	c.emitOpByte(bytecode.OpDefineGlobal, global)
}

func (c *Compiler) resolveLocal(fs *funcState, name lexer.Token) int {
	for i := len(fs.locals) - 1; i >= 0; i-- {
		if fs.locals[i].name.Lexeme == name.Lexeme {
			if fs.locals[i].depth == -1 {
				c.error("Can't read local variable in its own initializer.")
			}
			return i
		}
	}
	return -1
}

// resolveUpvalue recursively walks the enclosing function chain looking
// for name as a local; each hop it crosses records an up-value in the
// intervening function(s) so that a deeply nested closure still reaches
// a variable declared several functions out, one hop at a time.
func (c *Compiler) resolveUpvalue(fs *funcState, name lexer.Token) int {
	if fs.enclosing == nil {
		return -1
	}
	if local := c.resolveLocal(fs.enclosing, name); local != -1 {
		fs.enclosing.locals[local].isCaptured = true
		return c.addUpvalue(fs, byte(local), true)
	}
	if upvalue := c.resolveUpvalue(fs.enclosing, name); upvalue != -1 {
		return c.addUpvalue(fs, byte(upvalue), false)
	}
	return -1
}

func (c *Compiler) addUpvalue(fs *funcState, index byte, isLocal bool) int {
	for i, uv := range fs.upvalues {
		if uv.index == index && uv.isLocal == isLocal {
			return i
		}
	}
	if len(fs.upvalues) >= 256 {
		c.error("Too many closure variables in function.")
		return 0
	}
	fs.upvalues = append(fs.upvalues, upvalueRef{index: index, isLocal: isLocal})
	fs.function.UpvalueCount++
	return len(fs.upvalues) - 1
}

func (c *Compiler) namedVariable(name lexer.Token, canAssign bool) {
	var getOp, setOp bytecode.Opcode
	arg := c.resolveLocal(c.fn, name)
	switch {
	case arg != -1:
		getOp, setOp = bytecode.OpGetLocal, bytecode.OpSetLocal
	case func() bool { arg = c.resolveUpvalue(c.fn, name); return arg != -1 }():
		getOp, setOp = bytecode.OpGetUpvalue, bytecode.OpSetUpvalue
	default:
		arg = int(c.identifierConstant(name))
		getOp, setOp = bytecode.OpGetGlobal, bytecode.OpSetGlobal
	}

	if canAssign && c.match(lexer.TokenEqual) {
		c.expression()
		c.emitOpByte(setOp, byte(arg))
	} else {
		c.emitOpByte(getOp, byte(arg))
	}
}

func syntheticToken(text string) lexer.Token {
	return lexer.Token{Type: lexer.TokenIdentifier, Lexeme: text}
}

// --- expressions ---------------------------------------------------------

func (c *Compiler) parsePrecedence(prec precedence) {
	c.advance()
	prefixRule := ruleFor(c.prev.Type).prefix
	if prefixRule == nil {
		c.error("Expect expression.")
		return
	}
	canAssign := prec <= precAssignment
	prefixRule(c, canAssign)

	for prec <= ruleFor(c.current.Type).precedence {
		c.advance()
		infixRule := ruleFor(c.prev.Type).infix
		infixRule(c, canAssign)
	}

	if canAssign && c.match(lexer.TokenEqual) {
		c.error("Invalid assignment target.")
	}
}

func (c *Compiler) expression() { c.parsePrecedence(precAssignment) }

func (c *Compiler) grouping(_ bool) {
	c.expression()
	c.consume(lexer.TokenRightParen, "Expect ')' after expression.")
}

func (c *Compiler) number(_ bool) {
	v, _ := strconv.ParseFloat(c.prev.Lexeme, 64)
	c.emitConstant(value.Number(v))
}

func (c *Compiler) string_(_ bool) {
	lexeme := c.prev.Lexeme
	c.emitConstant(value.FromObj(c.vm.InternString(lexeme[1 : len(lexeme)-1])))
}

func (c *Compiler) literal(_ bool) {
	switch c.prev.Type {
	case lexer.TokenFalse:
		c.emitOp(bytecode.OpFalse)
	case lexer.TokenNil:
		c.emitOp(bytecode.OpNil)
	case lexer.TokenTrue:
		c.emitOp(bytecode.OpTrue)
	}
}

func (c *Compiler) variable(canAssign bool) { c.namedVariable(c.prev, canAssign) }

func (c *Compiler) this_(_ bool) {
	if c.class == nil {
		c.error("Can't use 'this' outside of a class.")
		return
	}
	c.variable(false)
}

func (c *Compiler) super_(_ bool) {
	switch {
	case c.class == nil:
		c.error("Can't use 'super' outside of a class.")
	case !c.class.hasSuperclass:
		c.error("Can't use 'super' in a class with no superclass.")
	}

	c.consume(lexer.TokenDot, "Expect '.' after 'super'.")
	c.consume(lexer.TokenIdentifier, "Expect superclass method name.")
	name := c.identifierConstant(c.prev)

	c.namedVariable(syntheticToken("this"), false)
	if c.match(lexer.TokenLeftParen) {
		argCount := c.argumentList()
		c.namedVariable(syntheticToken("super"), false)
		c.emitOpByte(bytecode.OpSuperInvoke, name)
		c.emitByte(argCount)
	} else {
		c.namedVariable(syntheticToken("super"), false)
		c.emitOpByte(bytecode.OpGetSuper, name)
	}
}

func (c *Compiler) unary(_ bool) {
	opType := c.prev.Type
	c.parsePrecedence(precUnary)
	switch opType {
	case lexer.TokenBang:
		c.emitOp(bytecode.OpNot)
	case lexer.TokenMinus:
		c.emitOp(bytecode.OpNegate)
	}
}

// binary compiles an infix operator, having already compiled its left
// operand; GREATER_EQUAL and LESS_EQUAL aren't their own opcodes — they
// fuse the opposite comparison with NOT, the same trick clox's bytecode
// uses, since smog's opcode table only has GREATER and LESS.
func (c *Compiler) binary(_ bool) {
	opType := c.prev.Type
	r := ruleFor(opType)
	c.parsePrecedence(r.precedence + 1)

	switch opType {
	case lexer.TokenBangEqual:
		c.emitOp(bytecode.OpEqual)
		c.emitOp(bytecode.OpNot)
	case lexer.TokenEqualEqual:
		c.emitOp(bytecode.OpEqual)
	case lexer.TokenGreater:
		c.emitOp(bytecode.OpGreater)
	case lexer.TokenGreaterEqual:
		c.emitOp(bytecode.OpLess)
		c.emitOp(bytecode.OpNot)
	case lexer.TokenLess:
		c.emitOp(bytecode.OpLess)
	case lexer.TokenLessEqual:
		c.emitOp(bytecode.OpGreater)
		c.emitOp(bytecode.OpNot)
	case lexer.TokenPlus:
		c.emitOp(bytecode.OpAdd)
	case lexer.TokenMinus:
		c.emitOp(bytecode.OpSubtract)
	case lexer.TokenStar:
		c.emitOp(bytecode.OpMultiply)
	case lexer.TokenSlash:
		c.emitOp(bytecode.OpDivide)
	}
}

func (c *Compiler) and_(_ bool) {
	endJump := c.emitJump(bytecode.OpJumpIfFalse)
	c.emitOp(bytecode.OpPop)
	c.parsePrecedence(precAnd)
	c.patchJump(endJump)
}

func (c *Compiler) or_(_ bool) {
	elseJump := c.emitJump(bytecode.OpJumpIfFalse)
	endJump := c.emitJump(bytecode.OpJump)
	c.patchJump(elseJump)
	c.emitOp(bytecode.OpPop)
	c.parsePrecedence(precOr)
	c.patchJump(endJump)
}

func (c *Compiler) argumentList() byte {
	var count int
	if !c.check(lexer.TokenRightParen) {
		for {
			c.expression()
			if count == 255 {
				c.error("Can't have more than 255 arguments.")
			}
			count++
			if !c.match(lexer.TokenComma) {
				break
			}
		}
	}
	c.consume(lexer.TokenRightParen, "Expect ')' after arguments.")
	return byte(count)
}

func (c *Compiler) call(_ bool) {
	argCount := c.argumentList()
	c.emitOpByte(bytecode.OpCall, argCount)
}

func (c *Compiler) dot(canAssign bool) {
	c.consume(lexer.TokenIdentifier, "Expect property name after '.'.")
	name := c.identifierConstant(c.prev)

	switch {
	case canAssign && c.match(lexer.TokenEqual):
		c.expression()
		c.emitOpByte(bytecode.OpSetProperty, name)
	case c.match(lexer.TokenLeftParen):
		argCount := c.argumentList()
		c.emitOpByte(bytecode.OpInvoke, name)
		c.emitByte(argCount)
	default:
		c.emitOpByte(bytecode.OpGetProperty, name)
	}
}

// --- statements and declarations -----------------------------------------

func (c *Compiler) declaration() {
	switch {
	case c.match(lexer.TokenClass):
		c.classDeclaration()
	case c.match(lexer.TokenFun):
		c.funDeclaration()
	case c.match(lexer.TokenVar):
		c.varDeclaration()
	default:
		c.statement()
	}

	if c.panicMode {
		c.synchronize()
	}
}

func (c *Compiler) synchronize() {
	c.panicMode = false
	for c.current.Type != lexer.TokenEOF {
		if c.prev.Type == lexer.TokenSemicolon {
			return
		}
		switch c.current.Type {
		case lexer.TokenClass, lexer.TokenFun, lexer.TokenVar, lexer.TokenFor,
			lexer.TokenIf, lexer.TokenWhile, lexer.TokenPrint, lexer.TokenReturn:
			return
		}
		c.advance()
	}
}

func (c *Compiler) varDeclaration() {
	global := c.parseVariable("Expect variable name.")
	if c.match(lexer.TokenEqual) {
		c.expression()
	} else {
		c.emitOp(bytecode.OpNil)
	}
	c.consume(lexer.TokenSemicolon, "Expect ';' after variable declaration.")
	c.defineVariable(global)
}

// function compiles one function body (the parameter list and the
// braced block), starting a fresh funcState chained off the enclosing
// one, then emits OP_CLOSURE with the per-up-value is-local/index pairs
// the VM's OP_CLOSURE handler reads to capture them.
func (c *Compiler) function(kind functionType, name string) {
	enclosing := c.fn
	fs := &funcState{enclosing: enclosing, kind: kind, function: c.vm.NewFunction()}
	c.fn = fs // root the new function before interning its name allocates
	fs.function.Name = c.vm.InternString(name)
	slotName := ""
	if kind == typeMethod || kind == typeInitializer {
		slotName = "this"
	}
	fs.locals = append(fs.locals, local{name: lexer.Token{Lexeme: slotName}, depth: 0})

	c.beginScope()
	c.consume(lexer.TokenLeftParen, "Expect '(' after function name.")
	if !c.check(lexer.TokenRightParen) {
		for {
			c.fn.function.Arity++
			if c.fn.function.Arity > 255 {
				c.errorAtCurrent("Can't have more than 255 parameters.")
			}
			constant := c.parseVariable("Expect parameter name.")
			c.defineVariable(constant)
			if !c.match(lexer.TokenComma) {
				break
			}
		}
	}
	c.consume(lexer.TokenRightParen, "Expect ')' after parameters.")
	c.consume(lexer.TokenLeftBrace, "Expect '{' before function body.")
	c.block()

	compiled := c.endCompiler()
	idx := c.makeConstant(value.FromObj(compiled))
	c.emitOpByte(bytecode.OpClosure, idx)
	for _, uv := range fs.upvalues {
		if uv.isLocal {
			c.emitByte(1)
		} else {
			c.emitByte(0)
		}
		c.emitByte(uv.index)
	}
}

func (c *Compiler) funDeclaration() {
	global := c.parseVariable("Expect function name.")
	name := c.prev.Lexeme
	c.markInitialized()
	c.function(typeFunction, name)
	c.defineVariable(global)
}

func (c *Compiler) method() {
	c.consume(lexer.TokenIdentifier, "Expect method name.")
	name := c.prev
	constant := c.identifierConstant(name)
	kind := typeMethod
	if name.Lexeme == "init" {
		kind = typeInitializer
	}
	c.function(kind, name.Lexeme)
	c.emitOpByte(bytecode.OpMethod, constant)
}

func (c *Compiler) classDeclaration() {
	c.consume(lexer.TokenIdentifier, "Expect class name.")
	className := c.prev
	nameConstant := c.identifierConstant(className)
	c.declareVariable()

	c.emitOpByte(bytecode.OpClass, nameConstant)
	c.defineVariable(nameConstant)

	cs := &classState{enclosing: c.class}
	c.class = cs

	if c.match(lexer.TokenLess) {
		c.consume(lexer.TokenIdentifier, "Expect superclass name.")
		c.variable(false)
		if className.Lexeme == c.prev.Lexeme {
			c.error("A class can't inherit from itself.")
		}

		c.beginScope()
		c.addLocal(syntheticToken("super"))
		c.defineVariable(0)

		c.namedVariable(className, false)
		c.emitOp(bytecode.OpInherit)
		cs.hasSuperclass = true
	}

	c.namedVariable(className, false)
	c.consume(lexer.TokenLeftBrace, "Expect '{' before class body.")
	for !c.check(lexer.TokenRightBrace) && !c.check(lexer.TokenEOF) {
		c.method()
	}
	c.consume(lexer.TokenRightBrace, "Expect '}' after class body.")
	c.emitOp(bytecode.OpPop) // the class value namedVariable(className) pushed

	if cs.hasSuperclass {
		c.endScope()
	}
	c.class = cs.enclosing
}

func (c *Compiler) block() {
	for !c.check(lexer.TokenRightBrace) && !c.check(lexer.TokenEOF) {
		c.declaration()
	}
	c.consume(lexer.TokenRightBrace, "Expect '}' after block.")
}

func (c *Compiler) statement() {
	switch {
	case c.match(lexer.TokenPrint):
		c.printStatement()
	case c.match(lexer.TokenFor):
		c.forStatement()
	case c.match(lexer.TokenIf):
		c.ifStatement()
	case c.match(lexer.TokenReturn):
		c.returnStatement()
	case c.match(lexer.TokenWhile):
		c.whileStatement()
	case c.match(lexer.TokenLeftBrace):
		c.beginScope()
		c.block()
		c.endScope()
	default:
		c.expressionStatement()
	}
}

func (c *Compiler) printStatement() {
	c.expression()
	c.consume(lexer.TokenSemicolon, "Expect ';' after value.")
	c.emitOp(bytecode.OpPrint)
}

func (c *Compiler) returnStatement() {
	if c.fn.kind == typeScript {
		c.error("Can't return from top-level code.")
	}
	if c.match(lexer.TokenSemicolon) {
		c.emitReturn()
		return
	}
	if c.fn.kind == typeInitializer {
		c.error("Can't return a value from an initializer.")
	}
	c.expression()
	c.consume(lexer.TokenSemicolon, "Expect ';' after return value.")
	c.emitOp(bytecode.OpReturn)
}

func (c *Compiler) expressionStatement() {
	c.expression()
	c.consume(lexer.TokenSemicolon, "Expect ';' after expression.")
	c.emitOp(bytecode.OpPop)
}

func (c *Compiler) ifStatement() {
	c.consume(lexer.TokenLeftParen, "Expect '(' after 'if'.")
	c.expression()
	c.consume(lexer.TokenRightParen, "Expect ')' after condition.")

	thenJump := c.emitJump(bytecode.OpJumpIfFalse)
	c.emitOp(bytecode.OpPop)
	c.statement()

	elseJump := c.emitJump(bytecode.OpJump)
	c.patchJump(thenJump)
	c.emitOp(bytecode.OpPop)

	if c.match(lexer.TokenElse) {
		c.statement()
	}
	c.patchJump(elseJump)
}

func (c *Compiler) whileStatement() {
	loopStart := len(c.chunk().Code)
	c.consume(lexer.TokenLeftParen, "Expect '(' after 'while'.")
	c.expression()
	c.consume(lexer.TokenRightParen, "Expect ')' after condition.")

	exitJump := c.emitJump(bytecode.OpJumpIfFalse)
	c.emitOp(bytecode.OpPop)
	c.statement()
	c.emitLoop(loopStart)

	c.patchJump(exitJump)
	c.emitOp(bytecode.OpPop)
}

// forStatement desugars C-style for loops into the while-loop-shaped
// bytecode clox generates: the initializer runs once outside any loop,
// the increment is compiled where it's written but spliced to run via a
// jump/loop pair just before the condition re-check.
func (c *Compiler) forStatement() {
	c.beginScope()
	c.consume(lexer.TokenLeftParen, "Expect '(' after 'for'.")
	switch {
	case c.match(lexer.TokenSemicolon):
		// no initializer
	case c.match(lexer.TokenVar):
		c.varDeclaration()
	default:
		c.expressionStatement()
	}

	loopStart := len(c.chunk().Code)
	exitJump := -1
	if !c.match(lexer.TokenSemicolon) {
		c.expression()
		c.consume(lexer.TokenSemicolon, "Expect ';' after loop condition.")
		exitJump = c.emitJump(bytecode.OpJumpIfFalse)
		c.emitOp(bytecode.OpPop)
	}

	if !c.match(lexer.TokenRightParen) {
		bodyJump := c.emitJump(bytecode.OpJump)
		incrementStart := len(c.chunk().Code)
		c.expression()
		c.emitOp(bytecode.OpPop)
		c.consume(lexer.TokenRightParen, "Expect ')' after for clauses.")

		c.emitLoop(loopStart)
		loopStart = incrementStart
		c.patchJump(bodyJump)
	}

	c.statement()
	c.emitLoop(loopStart)

	if exitJump != -1 {
		c.patchJump(exitJump)
		c.emitOp(bytecode.OpPop)
	}
	c.endScope()
}
