package command_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-document/pkg/docstore"
	"github.com/tendant/simple-document/pkg/docstore/command"
)

type addArgs struct {
	A int    `json:"a"`
	B int    `json:"b"`
	L string `json:"label"`
}

func testRegistry() *command.Registry {
	r := command.NewRegistry(nil)
	command.Register(r, command.Spec{
		Name: "add",
		Params: []command.Param{
			{Name: "a", Type: command.TypeInteger, Required: true},
			{Name: "b", Type: command.TypeInteger, Required: true},
			{Name: "label", Type: command.TypeString},
		},
	}, func(ctx context.Context, args addArgs) (command.Result, error) {
		return command.Result{OK: true, Message: fmt.Sprintf("%s%d", args.L, args.A+args.B)}, nil
	})
	command.Register(r, command.Spec{Name: "boom"}, func(ctx context.Context, _ struct{}) (command.Result, error) {
		panic("kaboom")
	})
	command.Register(r, command.Spec{Name: "missing"}, func(ctx context.Context, _ struct{}) (command.Result, error) {
		return command.Result{}, fmt.Errorf("lookup: %w", docstore.ErrNotFound)
	})
	command.Register(r, command.Spec{Name: "bad"}, func(ctx context.Context, _ struct{}) (command.Result, error) {
		return command.Result{}, fmt.Errorf("open: %w", docstore.ErrDecode)
	})
	return r
}

func TestDispatch(t *testing.T) {
	r := testRegistry()
	ctx := context.Background()

	res, err := r.Dispatch(ctx, "add", json.RawMessage(`{"a": 2, "b": 3, "label": "sum="}`))
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, "sum=5", res.Message)

	res, err = r.DispatchMap(ctx, "add", map[string]any{"a": float64(4), "b": float64(1)})
	require.NoError(t, err)
	assert.Equal(t, "5", res.Message)
}

func TestDispatch_Errors(t *testing.T) {
	r := testRegistry()
	ctx := context.Background()

	tests := []struct {
		name    string
		command string
		args    string
		wantErr error
	}{
		{"UnknownCommand", "nope", `{}`, command.ErrUnknownCommand},
		{"MissingRequired", "add", `{"a": 1}`, command.ErrInvalidArguments},
		{"WrongType", "add", `{"a": "x", "b": 1}`, command.ErrInvalidArguments},
		{"NotAnObject", "add", `[1, 2]`, command.ErrInvalidArguments},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Dispatch(ctx, tt.command, json.RawMessage(tt.args))
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestDispatch_FailuresBecomeResults(t *testing.T) {
	r := testRegistry()
	ctx := context.Background()

	res, err := r.Dispatch(ctx, "boom", nil)
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Contains(t, res.Message, "internal error")

	res, err = r.Dispatch(ctx, "missing", nil)
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.True(t, res.NotFound)
	assert.Contains(t, res.Message, "blob not found")

	res, err = r.Dispatch(ctx, "bad", json.RawMessage("null"))
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.True(t, res.Invalid)
}

func TestRegister_Duplicate(t *testing.T) {
	r := testRegistry()
	assert.Panics(t, func() {
		command.Register(r, command.Spec{Name: "add"}, func(ctx context.Context, _ struct{}) (command.Result, error) {
			return command.Result{}, nil
		})
	})
}

func TestRestrict(t *testing.T) {
	r := testRegistry()

	sub, err := r.Restrict([]string{"missing", "add"})
	require.NoError(t, err)
	assert.Equal(t, 2, sub.Len())
	assert.Equal(t, "add", sub.Specs()[0].Name)

	_, err = sub.Dispatch(context.Background(), "boom", nil)
	assert.ErrorIs(t, err, command.ErrUnknownCommand)

	_, err = r.Restrict([]string{"add", "ghost"})
	assert.ErrorIs(t, err, command.ErrUnknownCommand)
}

func TestSpecNoArgs(t *testing.T) {
	r := testRegistry()
	add, ok := r.Lookup("add")
	require.True(t, ok)
	assert.False(t, add.NoArgs())

	boom, ok := r.Lookup("boom")
	require.True(t, ok)
	assert.True(t, boom.NoArgs())
}

func TestResultText(t *testing.T) {
	assert.Equal(t, "done", command.Result{Message: "done"}.Text())
	assert.Equal(t, "done\n{\n  \"n\": 1\n}", command.Result{Message: "done", Data: map[string]int{"n": 1}}.Text())
}
