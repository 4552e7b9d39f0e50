package eval

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_BuiltinsRegistered(t *testing.T) {
	r := NewRegistry()

	for _, typ := range []string{
		TypeContains, TypeNotContains, TypeRegex, TypeEquals, TypeIsJSON,
		TypeFieldAccuracy, TypeBudget, TypeTrajectory, TypeCode,
		TypeLLMJudge, TypeAgentJudge, TypeCEL, TypeComposite,
	} {
		assert.True(t, r.Has(typ), "built-in %q should be registered", typ)
		assert.True(t, r.IsBuiltin(typ))
	}
}

func TestRegistry_UnknownTypeListsRegisteredTypes(t *testing.T) {
	r := NewRegistry()

	_, err := r.Create(EvaluatorConfig{Name: "x", Type: "does_not_exist"}, &DispatchContext{})
	require.Error(t, err)
	assert.True(t, IsConfigError(err))
	assert.Contains(t, err.Error(), `unknown evaluator type "does_not_exist"`)
	assert.Contains(t, err.Error(), "registered types:")
	assert.Contains(t, err.Error(), TypeContains)
	assert.Contains(t, err.Error(), TypeComposite)
}

func TestRegistry_DuplicateRegistrationRejected(t *testing.T) {
	r := NewRegistry()

	err := r.Register(TypeContains, func(cfg EvaluatorConfig, dc *DispatchContext) (Evaluator, error) {
		return nil, nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestRegistry_CreateValidatesBasics(t *testing.T) {
	r := NewRegistry()

	_, err := r.Create(EvaluatorConfig{Type: TypeContains, Value: "x"}, &DispatchContext{})
	require.Error(t, err, "missing name")

	_, err = r.Create(EvaluatorConfig{Name: "x"}, &DispatchContext{})
	require.Error(t, err, "missing type")
}

func TestDiscoverScripts_RegistersExecutables(t *testing.T) {
	root := t.TempDir()
	judgesDir := filepath.Join(root, JudgesDir)
	require.NoError(t, os.MkdirAll(judgesDir, 0o755))

	require.NoError(t, os.WriteFile(filepath.Join(judgesDir, "tone_check.py"),
		[]byte("#!/usr/bin/env python3\n"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(judgesDir, "notes.txt"),
		[]byte("not a script"), 0o644))

	r := NewRegistry()
	require.NoError(t, DiscoverScripts(r, root, nil))

	assert.True(t, r.Has("tone_check"), "executable should register under its basename")
	assert.False(t, r.IsBuiltin("tone_check"))
	assert.False(t, r.Has("notes"), "non-executable files are skipped")
}

func TestDiscoverScripts_NearestAncestorWins(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "suites", "billing")
	require.NoError(t, os.MkdirAll(filepath.Join(nested, JudgesDir), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, JudgesDir), 0o755))

	nearScript := filepath.Join(nested, JudgesDir, "grade.sh")
	farScript := filepath.Join(root, JudgesDir, "grade.sh")
	require.NoError(t, os.WriteFile(nearScript, []byte("#!/bin/sh\necho near\n"), 0o755))
	require.NoError(t, os.WriteFile(farScript, []byte("#!/bin/sh\necho far\n"), 0o755))

	r := NewRegistry()
	require.NoError(t, DiscoverScripts(r, nested, nil))
	require.True(t, r.Has("grade"))

	// The registered factory must be bound to the nearest script.
	ev, err := r.Create(EvaluatorConfig{Name: "g", Type: "grade"}, &DispatchContext{})
	require.NoError(t, err)
	ce, ok := ev.(*codeEvaluator)
	require.True(t, ok)
	assert.Equal(t, []string{nearScript}, ce.argv)
}

func TestDiscoverScripts_NeverShadowsBuiltins(t *testing.T) {
	root := t.TempDir()
	judgesDir := filepath.Join(root, JudgesDir)
	require.NoError(t, os.MkdirAll(judgesDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(judgesDir, "contains.sh"),
		[]byte("#!/bin/sh\n"), 0o755))

	r := NewRegistry()
	require.NoError(t, DiscoverScripts(r, root, nil))

	// "contains" must still be the built-in.
	assert.True(t, r.IsBuiltin(TypeContains))
	ev, err := r.Create(EvaluatorConfig{Name: "c", Type: TypeContains, Value: "x"}, &DispatchContext{})
	require.NoError(t, err)
	_, isBuiltin := ev.(*containsEvaluator)
	assert.True(t, isBuiltin)
}

func TestDiscoverScripts_MissingDirectoryIsFine(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, DiscoverScripts(r, t.TempDir(), nil))
}
