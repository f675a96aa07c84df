package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	qt "github.com/frankban/quicktest"
)

// TestErrorCodesAreUnique scans the package AST for Error{...} literals
// assigned to package vars and fails if two of them share a Code.
func TestErrorCodesAreUnique(t *testing.T) {
	c := qt.New(t)

	fset := token.NewFileSet()
	pkgs, err := parser.ParseDir(fset, ".", func(info fs.FileInfo) bool {
		return !strings.HasSuffix(info.Name(), "_test.go")
	}, 0)
	c.Assert(err, qt.IsNil)
	pkg, ok := pkgs["errors"]
	c.Assert(ok, qt.IsTrue)

	seen := map[int][]string{}
	for _, f := range pkg.Files {
		ast.Inspect(f, func(n ast.Node) bool {
			vs, ok := n.(*ast.ValueSpec)
			if !ok {
				return true
			}
			for i, name := range vs.Names {
				if i >= len(vs.Values) {
					continue
				}
				cl, ok := vs.Values[i].(*ast.CompositeLit)
				if !ok {
					continue
				}
				if ident, ok := cl.Type.(*ast.Ident); !ok || ident.Name != "Error" {
					continue
				}
				if code, ok := codeField(cl); ok {
					seen[code] = append(seen[code], name.Name+"@"+fset.Position(name.Pos()).String())
				}
			}
			return true
		})
	}

	c.Assert(len(seen) > 0, qt.IsTrue)
	var dups []string
	for code, names := range seen {
		if len(names) > 1 {
			dups = append(dups, fmt.Sprintf("%d: %s", code, strings.Join(names, ", ")))
		}
	}
	c.Assert(dups, qt.HasLen, 0, qt.Commentf("duplicated codes:\n%s", strings.Join(dups, "\n")))
}

func codeField(cl *ast.CompositeLit) (int, bool) {
	for _, elt := range cl.Elts {
		kv, ok := elt.(*ast.KeyValueExpr)
		if !ok {
			continue
		}
		if key, ok := kv.Key.(*ast.Ident); !ok || key.Name != "Code" {
			continue
		}
		lit, ok := kv.Value.(*ast.BasicLit)
		if !ok || lit.Kind != token.INT {
			continue
		}
		n, err := strconv.Atoi(strings.ReplaceAll(lit.Value, "_", ""))
		if err == nil {
			return n, true
		}
	}
	return 0, false
}

func TestErrorWrite(t *testing.T) {
	c := qt.New(t)

	rec := httptest.NewRecorder()
	ErrInsufficientBalance.Withf("balance %d, requested %d", 10, 5000).Write(rec)

	c.Assert(rec.Code, qt.Equals, http.StatusBadRequest)
	c.Assert(rec.Header().Get("Content-Type"), qt.Equals, "application/json")
	body := struct {
		Error string `json:"error"`
		Code  int    `json:"code"`
	}{}
	c.Assert(json.Unmarshal(rec.Body.Bytes(), &body), qt.IsNil)
	c.Assert(body.Code, qt.Equals, 40015)
	c.Assert(body.Error, qt.Equals, "insufficient coin balance: balance 10, requested 5000")
}

func TestErrorWriteUnmarshalableData(t *testing.T) {
	c := qt.New(t)

	rec := httptest.NewRecorder()
	ErrInvalidData.WithData(make(chan int)).Write(rec)

	c.Assert(rec.Code, qt.Equals, http.StatusInternalServerError)
	c.Assert(rec.Header().Get("Content-Type"), qt.Equals, "application/json")
	body := struct {
		Error string `json:"error"`
		Code  int    `json:"code"`
	}{}
	c.Assert(json.Unmarshal(rec.Body.Bytes(), &body), qt.IsNil)
	c.Assert(body.Code, qt.Equals, ErrMarshalingServerJSONFailed.Code)
	c.Assert(body.Error, qt.Equals, ErrMarshalingServerJSONFailed.Error())
}

func TestErrorDerivedKeepsIdentity(t *testing.T) {
	c := qt.New(t)

	cause := fmt.Errorf("connection refused")
	err := ErrInternalStorageError.WithErr(cause).WithData(map[string]int{"retry": 1})
	c.Assert(err.Code, qt.Equals, ErrInternalStorageError.Code)
	c.Assert(err.HTTPstatus, qt.Equals, http.StatusInternalServerError)
	c.Assert(err.Data, qt.DeepEquals, map[string]int{"retry": 1})
	c.Assert(stderrors.Is(err, ErrInternalStorageError.Err), qt.IsTrue)

	raw, jerr := json.Marshal(err)
	c.Assert(jerr, qt.IsNil)
	c.Assert(string(raw), qt.Contains, `"data":{"retry":1}`)
}
