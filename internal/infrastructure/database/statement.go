package database

import (
	"errors"
	"strings"
)

// ErrMultipleStatements is wrapped in the *EngineError returned when query
// text holds more than one SQL statement.
var ErrMultipleStatements = errors.New("you can only execute one statement at a time")

// sqlToken classifies the lexemes that decide where a statement ends.
type sqlToken uint8

const (
	tokSemi sqlToken = iota
	tokSpace
	tokOther
	tokExplain
	tokCreate
	tokTemp
	tokTrigger
	tokEnd
)

// Statement boundary states. A trigger body may hold semicolons of its own;
// it only ends at "END;".
const (
	stInvalid = iota
	stStart
	stNormal
	stExplain
	stCreate
	stTrigger
	stSemi
	stEnd
)

var boundary = [8][8]uint8{
	//              SEMI    SPACE      OTHER     EXPLAIN    CREATE    TEMP       TRIGGER    END
	stInvalid: {stStart, stInvalid, stNormal, stExplain, stCreate, stNormal, stNormal, stNormal},
	stStart:   {stStart, stStart, stNormal, stExplain, stCreate, stNormal, stNormal, stNormal},
	stNormal:  {stStart, stNormal, stNormal, stNormal, stNormal, stNormal, stNormal, stNormal},
	stExplain: {stStart, stExplain, stExplain, stNormal, stCreate, stNormal, stNormal, stNormal},
	stCreate:  {stStart, stCreate, stNormal, stNormal, stNormal, stCreate, stTrigger, stNormal},
	stTrigger: {stSemi, stTrigger, stTrigger, stTrigger, stTrigger, stTrigger, stTrigger, stTrigger},
	stSemi:    {stSemi, stSemi, stTrigger, stTrigger, stTrigger, stTrigger, stTrigger, stEnd},
	stEnd:     {stStart, stEnd, stTrigger, stTrigger, stTrigger, stTrigger, stTrigger, stTrigger},
}

// splitStatement returns the first statement in text, stripped of the
// whitespace, comments and semicolons around it, and whatever SQL follows.
// Text with no statement at all is returned unchanged.
func splitStatement(text string) (stmt, tail string) {
	state := stInvalid
	begin, end := -1, -1
	for i := 0; i < len(text); {
		tok, next := scanToken(text, i)
		if end >= 0 {
			if tok != tokSemi && tok != tokSpace {
				return text[begin:end], strings.TrimSpace(text[end:])
			}
			i = next
			continue
		}
		if begin < 0 && tok != tokSemi && tok != tokSpace {
			begin = i
		}
		prev := state
		state = int(boundary[state][tok])
		if tok == tokSemi && state == stStart && prev != stInvalid && prev != stStart {
			end = next
		}
		i = next
	}
	switch {
	case begin < 0:
		return text, ""
	case end < 0:
		return text[begin:], ""
	default:
		return text[begin:end], ""
	}
}

// single returns the lone statement in text, or an *EngineError when more
// than one statement is present.
func single(text string) (string, error) {
	stmt, tail := splitStatement(text)
	if tail != "" {
		return "", &EngineError{Query: text, Err: ErrMultipleStatements}
	}
	return stmt, nil
}

// scanToken classifies the token starting at text[i] and returns the offset
// just past it.
func scanToken(text string, i int) (sqlToken, int) {
	c := text[i]
	switch {
	case c == ';':
		return tokSemi, i + 1
	case c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f':
		return tokSpace, i + 1
	case c == '-' && strings.HasPrefix(text[i:], "--"):
		if n := strings.IndexByte(text[i:], '\n'); n >= 0 {
			return tokSpace, i + n + 1
		}
		return tokSpace, len(text)
	case c == '/' && strings.HasPrefix(text[i:], "/*"):
		if n := strings.Index(text[i+2:], "*/"); n >= 0 {
			return tokSpace, i + 2 + n + 2
		}
		return tokOther, len(text)
	case c == '\'' || c == '"' || c == '`':
		return tokOther, skipQuoted(text, i, c)
	case c == '[':
		if n := strings.IndexByte(text[i:], ']'); n >= 0 {
			return tokOther, i + n + 1
		}
		return tokOther, len(text)
	case isIdentByte(c):
		j := i
		for j < len(text) && isIdentByte(text[j]) {
			j++
		}
		return keyword(text[i:j]), j
	default:
		return tokOther, i + 1
	}
}

// skipQuoted returns the offset just past the literal opened by quote at
// text[i]. A doubled quote character is an escaped quote.
func skipQuoted(text string, i int, quote byte) int {
	for j := i + 1; j < len(text); j++ {
		if text[j] != quote {
			continue
		}
		if j+1 < len(text) && text[j+1] == quote {
			j++
			continue
		}
		return j + 1
	}
	return len(text)
}

func isIdentByte(c byte) bool {
	return c == '_' || c == '$' || c >= 0x80 ||
		(c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func keyword(word string) sqlToken {
	switch strings.ToLower(word) {
	case "explain":
		return tokExplain
	case "create":
		return tokCreate
	case "temp", "temporary":
		return tokTemp
	case "trigger":
		return tokTrigger
	case "end":
		return tokEnd
	default:
		return tokOther
	}
}
