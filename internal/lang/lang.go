// Package lang describes the closed set of languages a submission can be
// written in, and the commands used to build and run each of them.
package lang

import (
	"fmt"
	"strings"
)

type Language int

const (
	Cpp17 Language = iota + 1
	Python3
)

// All lists every supported language.
var All = []Language{Cpp17, Python3}

// Commands used to build and run a program. Argv values are relative to the
// workspace the program is built in.
type Commands struct {
	// SourceFname is the name the source text is written to.
	SourceFname string
	// CompileArgv checks or builds SourceFname into ExecFname.
	CompileArgv []string
	// ExecFname is the file that has to exist after a successful compile.
	ExecFname string
	RunArgv   []string
}

func (l Language) String() string {
	switch l {
	case Cpp17:
		return "CPP17"
	case Python3:
		return "PYTHON3"
	default:
		return fmt.Sprintf("Language(%d)", int(l))
	}
}

// Commands returns the build and run commands of l. Building the returned
// value from a switch without a default makes a new language without
// commands fail the exhaustiveness test.
func (l Language) Commands() (Commands, error) {
	switch l {
	case Cpp17:
		return Commands{
			SourceFname: "code.cpp",
			CompileArgv: []string{"g++", "-std=c++17", "-O2", "-static", "-o", "a.out", "code.cpp"},
			ExecFname:   "a.out",
			RunArgv:     []string{"./a.out"},
		}, nil
	case Python3:
		return Commands{
			SourceFname: "code.py",
			CompileArgv: []string{"/usr/bin/python3", "-m", "py_compile", "code.py"},
			ExecFname:   "code.py",
			RunArgv:     []string{"/usr/bin/python3", "code.py"},
		}, nil
	}
	return Commands{}, fmt.Errorf("unsupported language %s", l)
}

// Parse maps a stored submission type onto a language.
func Parse(submissionType string) (Language, error) {
	switch strings.ToUpper(strings.TrimSpace(submissionType)) {
	case "CPP17", "C++17", "CPP":
		return Cpp17, nil
	case "PYTHON3", "PYTHON3.7", "PYTHON", "PY3":
		return Python3, nil
	}
	return 0, fmt.Errorf("unknown submission type %q", submissionType)
}

// Reference returns the commands for problem-setter programs (solution,
// checker, interactor, generators). They are C++17 and may include testlib.h
// from the build directory.
func Reference(name string) Commands {
	src := name + ".cpp"
	return Commands{
		SourceFname: src,
		CompileArgv: []string{"g++", "-std=c++17", "-O2", "-static", "-I.", "-o", name, src},
		ExecFname:   name,
		RunArgv:     []string{"./" + name},
	}
}
