package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/r3e-network/sfnc/domain/units"
	"github.com/r3e-network/sfnc/sfnc"
)

const sampleSource = `function deposit(accountId, amount) {
	return accountId;
}`

func TestCompileDirWritesOneJSONPerSourceFile(t *testing.T) {
	srcDir := t.TempDir()
	outDir := t.TempDir()

	if err := os.WriteFile(filepath.Join(srcDir, "deposit.js"), []byte(sampleSource), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if err := os.WriteFile(filepath.Join(srcDir, "README.md"), []byte("not a source file"), 0o644); err != nil {
		t.Fatalf("write non-js fixture: %v", err)
	}

	stack := &fileStackHandle{outDir: outDir}
	decorator := sfnc.New(stack, map[string]units.CallableRef{})

	names, err := compileDir(context.Background(), decorator, srcDir, false, 0)
	if err != nil {
		t.Fatalf("compileDir: %v", err)
	}

	if len(names) != 1 || names[0] != "deposit" {
		t.Fatalf("names = %v, want [deposit]", names)
	}

	data, err := os.ReadFile(filepath.Join(outDir, "deposit.json"))
	if err != nil {
		t.Fatalf("read compiled output: %v", err)
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("decode compiled output: %v", err)
	}
	if doc["StartAt"] == "" || doc["StartAt"] == nil {
		t.Fatalf("expected a non-empty StartAt, got %+v", doc)
	}
}

func TestCompileDirPropagatesCompileErrors(t *testing.T) {
	srcDir := t.TempDir()
	outDir := t.TempDir()

	if err := os.WriteFile(filepath.Join(srcDir, "broken.js"), []byte("function broken( { return"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	stack := &fileStackHandle{outDir: outDir}
	decorator := sfnc.New(stack, map[string]units.CallableRef{})

	if _, err := compileDir(context.Background(), decorator, srcDir, false, 0); err == nil {
		t.Fatal("expected an error for malformed source")
	}
}

func TestRecompileFuncRendersFreshDocument(t *testing.T) {
	srcDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(srcDir, "deposit.js"), []byte(sampleSource), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	fn := recompileFunc(map[string]units.CallableRef{}, srcDir, false, 0)
	doc, err := fn(context.Background(), "deposit")
	if err != nil {
		t.Fatalf("recompile: %v", err)
	}
	if doc.StartAt == "" {
		t.Fatal("expected a non-empty StartAt")
	}
}

func TestOpenRegistryDefaultsToMemoryWhenDSNEmpty(t *testing.T) {
	store, closeFn := openRegistry("", nil, nil)
	defer closeFn()

	if store == nil {
		t.Fatal("expected a non-nil store")
	}
}
