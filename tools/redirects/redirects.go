// Command redirects patches calls to selected Go runtime functions so that
// they end up in kernel code.
//
// Functions annotated with a "//go:redirect-from <symbol>" comment replace
// <symbol> at boot. The tool supports two commands that are invoked by the
// kernel build:
//
//	count                 print the number of redirects; used to size the
//	                      .goredirectstbl section in the linker script
//	populate-table <img>  resolve the address of each redirect pair in the
//	                      linked kernel image and write the (src, dst) pairs
//	                      to its .goredirectstbl section
//
// The tool must be run from the repository root.
package main

import (
	"bufio"
	"debug/elf"
	"encoding/binary"
	"errors"
	"flag"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	redirectDirective = "//go:redirect-from"
	redirectSection   = ".goredirectstbl"

	// each table entry holds the source and destination address
	redirectEntrySize = 16
)

type redirect struct {
	src string
	dst string

	srcVMA uint64
	dstVMA uint64
}

func exit(err error) {
	fmt.Fprintf(os.Stderr, "[redirects] error: %s\n", err.Error())
	os.Exit(1)
}

// modulePath returns the module path declared by the go.mod file in root.
func modulePath(root string) (string, error) {
	f, err := os.Open(filepath.Join(root, "go.mod"))
	if err != nil {
		return "", err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 2 && fields[0] == "module" {
			return strings.Trim(fields[1], `"`), nil
		}
	}

	if err = scanner.Err(); err != nil {
		return "", err
	}

	return "", errors.New("go.mod does not declare a module path")
}

// collectGoFiles returns the non-test Go files below dir.
func collectGoFiles(dir string) ([]string, error) {
	var goFiles []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if info.IsDir() {
			if name := info.Name(); path != dir && (strings.HasPrefix(name, "_") || strings.HasPrefix(name, ".") || name == "testdata") {
				return filepath.SkipDir
			}
			return nil
		}

		if strings.HasSuffix(path, ".go") && !strings.HasSuffix(path, "_test.go") {
			goFiles = append(goFiles, path)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return goFiles, nil
}

// findRedirects parses the supplied Go files and returns the redirects
// declared by their function comments. The destination of each redirect is
// the linker symbol name of the annotated function, derived from modPath and
// the location of the file relative to root. The returned list is sorted by
// source symbol.
func findRedirects(modPath, root string, goFiles []string) ([]*redirect, error) {
	var redirects []*redirect

	for _, goFile := range goFiles {
		fset := token.NewFileSet()

		f, err := parser.ParseFile(fset, goFile, nil, parser.ParseComments)
		if err != nil {
			return nil, err
		}

		dir, err := filepath.Rel(root, filepath.Dir(goFile))
		if err != nil {
			return nil, err
		}

		pkgPath := modPath
		if dir != "." {
			pkgPath += "/" + filepath.ToSlash(dir)
		}

		for _, decl := range f.Decls {
			fnDecl, ok := decl.(*ast.FuncDecl)
			if !ok || fnDecl.Doc == nil || fnDecl.Recv != nil {
				continue
			}

			for _, comment := range fnDecl.Doc.List {
				if !strings.HasPrefix(comment.Text, redirectDirective) {
					continue
				}

				dst := pkgPath + "." + fnDecl.Name.Name
				fields := strings.Fields(comment.Text)
				if len(fields) != 2 || fields[0] != redirectDirective {
					return nil, fmt.Errorf("%s: malformed %s syntax for %q", fset.Position(comment.Pos()), redirectDirective, dst)
				}

				redirects = append(redirects, &redirect{
					src: fields[1],
					dst: dst,
				})
			}
		}
	}

	sort.Slice(redirects, func(i, j int) bool {
		return redirects[i].src < redirects[j].src
	})

	return redirects, nil
}

// resolveSymbols fills in the source and destination address of each
// redirect using the symbol table of an ELF image.
func resolveSymbols(redirects []*redirect, symbols []elf.Symbol) error {
	addr := make(map[string]uint64, len(symbols))
	for _, symbol := range symbols {
		addr[symbol.Name] = symbol.Value
	}

	for _, redirect := range redirects {
		redirect.srcVMA = addr[redirect.src]
		redirect.dstVMA = addr[redirect.dst]

		switch {
		case redirect.srcVMA == 0:
			return fmt.Errorf("could not locate address of %q", redirect.src)
		case redirect.dstVMA == 0:
			return fmt.Errorf("could not locate address of %q", redirect.dst)
		}
	}

	return nil
}

// writeTable encodes the redirect table to w.
func writeTable(w io.Writer, redirects []*redirect) error {
	for _, redirect := range redirects {
		if err := binary.Write(w, binary.LittleEndian, [2]uint64{redirect.srcVMA, redirect.dstVMA}); err != nil {
			return err
		}
	}

	return nil
}

// populateTable resolves the redirects against the symbols of the kernel
// image in imgFile and writes the redirect table to its redirect section.
func populateTable(redirects []*redirect, imgFile string) error {
	img, err := elf.Open(imgFile)
	if err != nil {
		return err
	}

	symbols, err := img.Symbols()
	if err != nil {
		img.Close()
		return err
	}

	section := img.Section(redirectSection)
	img.Close()

	if section == nil {
		return fmt.Errorf("%s: missing %s section", imgFile, redirectSection)
	}

	if need := uint64(len(redirects) * redirectEntrySize); section.Size < need {
		return fmt.Errorf("%s: %s section is %d bytes; %d bytes are required", imgFile, redirectSection, section.Size, need)
	}

	if err = resolveSymbols(redirects, symbols); err != nil {
		return fmt.Errorf("%s: %w", imgFile, err)
	}

	f, err := os.OpenFile(imgFile, os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err = f.Seek(int64(section.Offset), io.SeekStart); err != nil {
		return err
	}

	return writeTable(f, redirects)
}

func main() {
	flag.Parse()
	if matches, _ := filepath.Glob("kernel/"); len(matches) != 1 {
		exit(errors.New("this tool must be run from the repository root"))
	}

	if len(flag.Args()) == 0 {
		exit(errors.New("missing command"))
	}

	cmd := flag.Arg(0)
	var imgFile string
	switch cmd {
	case "count":
	case "populate-table":
		if len(flag.Args()) != 2 {
			exit(errors.New("populate-table requires the path to the kernel image as an argument"))
		}
		imgFile = flag.Arg(1)
	default:
		exit(fmt.Errorf("unknown command %q", cmd))
	}

	modPath, err := modulePath(".")
	if err != nil {
		exit(err)
	}

	goFiles, err := collectGoFiles("kernel")
	if err != nil {
		exit(err)
	}

	redirects, err := findRedirects(modPath, ".", goFiles)
	if err != nil {
		exit(err)
	}

	if cmd == "count" {
		fmt.Printf("%d", len(redirects))
		return
	}

	if err = populateTable(redirects, imgFile); err != nil {
		exit(err)
	}
}
