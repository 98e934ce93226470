// Package batch runs script files from the device filesystem.
//
// A batch file is a list of command lines with optional sections:
//
//	X=hello          # local assignment, visible as $X
//	default:         # label; skipped unless requested
//	  echo $X $1
//	all:             # always runs
//	  echo done
//
// exec <file> [<label>] [<args>] runs a file. The label is available as $0
// and $LABEL, the remaining arguments as $1, $2 and so on. Lines before the
// first label always run. exec lines inside a batch recurse into the
// interpreter directly. break ends the current file; break on 1 ends it on
// the next failing command. When the outermost batch returns, echo is
// switched back on.
//
// The package also provides test, the condition evaluator used by scripts,
// and man, which runs the section of man.man named after the topic.
package batch
