// Package languages holds the static table of supported languages.
//
// Each entry describes the source file name, the optional compile command,
// the run command and how the program receives its standard input, plus the
// source rewriting rule some languages need before they can run a bare
// snippet (Java class renaming, C# scaffolding, JavaScript readline feeding,
// SQLite quoting). Adding a language means adding one ID constant and one
// table entry.
package languages
