package extractor

import "strings"

// Family groups file extensions by how region boundaries can be found.
type Family int

const (
	// Unstructured files are scanned line by line.
	Unstructured Family = iota
	// Approximate files have declarations found by pattern and bodies by
	// brace counting.
	Approximate
	// Structured files are parsed with a full grammar.
	Structured
)

func (f Family) String() string {
	switch f {
	case Structured:
		return "structured"
	case Approximate:
		return "approximate"
	default:
		return "unstructured"
	}
}

var familyByExt = map[string]Family{
	".py":  Structured,
	".go":  Structured,
	".js":  Approximate,
	".jsx": Approximate,
	".ts":  Approximate,
	".tsx": Approximate,
	".mjs": Approximate,
	".cjs": Approximate,
}

// FamilyOf maps a file extension (with its leading dot) to a Family.
func FamilyOf(ext string) Family {
	return familyByExt[strings.ToLower(ext)]
}

// Region is a candidate span of a file, 1-indexed and inclusive.
type Region struct {
	Name      string
	StartLine int
	EndLine   int
}

// Strategy proposes candidate regions for a file. A non-nil error means the
// file could not be analysed structurally.
type Strategy interface {
	Regions(content []byte, lines []string) ([]Region, error)
}

// strategyFor returns nil for Unstructured files.
func strategyFor(ext string) Strategy {
	switch FamilyOf(ext) {
	case Structured:
		if lang, ok := grammarByExt[strings.ToLower(ext)]; ok {
			return &syntaxStrategy{grammar: lang}
		}
		return nil
	case Approximate:
		return braceStrategy{}
	default:
		return nil
	}
}
