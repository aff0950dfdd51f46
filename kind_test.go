package sanlvm_test

import (
	"encoding/json"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"

	"machinerun.io/sanlvm"
)

func TestVolumeKindString(t *testing.T) {
	ast := assert.New(t)

	ast.Equal("default", sanlvm.KindDefault.String())
	ast.Equal("thin", sanlvm.KindThin.String())
	ast.Equal("unknown-7", sanlvm.VolumeKind(7).String())
}

func TestVolumeKindMarshal(t *testing.T) {
	ast := assert.New(t)

	for kind, expected := range map[sanlvm.VolumeKind]string{
		sanlvm.KindDefault: `"default"`,
		sanlvm.KindThin:    `"thin"`,
	} {
		jbytes, err := json.Marshal(kind)
		ast.NoError(err)
		ast.Equal(expected, string(jbytes))
	}
}

func TestVolumeKindUnmarshal(t *testing.T) {
	ast := assert.New(t)

	table := []struct {
		blob     string
		expected sanlvm.VolumeKind
	}{
		{`"default"`, sanlvm.KindDefault},
		{`"thin"`, sanlvm.KindThin},
		{`"Thin"`, sanlvm.KindThin},
		// an absent kind means thick provisioning
		{`""`, sanlvm.KindDefault},
		// the integer values deserialize too
		{strconv.Itoa(int(sanlvm.KindThin)), sanlvm.KindThin},
		{"0", sanlvm.KindDefault},
	}

	for _, entry := range table {
		var kind sanlvm.VolumeKind

		err := json.Unmarshal([]byte(entry.blob), &kind)
		ast.NoError(err, "blob %s", entry.blob)
		ast.Equal(entry.expected, kind, "blob %s", entry.blob)
	}

	var kind sanlvm.VolumeKind

	ast.Error(json.Unmarshal([]byte(`"sparse"`), &kind))
	ast.Error(json.Unmarshal([]byte(`{}`), &kind))
}
