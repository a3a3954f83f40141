package evidence

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jleaniz/turbinia/internal/pkg/encoding/json"
	"github.com/jleaniz/turbinia/internal/pkg/processor"
	"github.com/jleaniz/turbinia/internal/pkg/utils/errors"
)

func assertRoundTrip(t *testing.T, expected Evidence) Evidence {
	t.Helper()
	data, err := Encode(expected)
	require.NoError(t, err)
	actual, err := Decode(data)
	require.NoError(t, err)
	if diff := cmp.Diff(expected, actual, cmp.AllowUnexported(Base{})); diff != "" {
		t.Errorf("evidence differs after decoding (-expected +actual):\n%s", diff)
	}
	return actual
}

func TestCodec_RoundTrip_ParentChain(t *testing.T) {
	t.Parallel()

	disk := NewRawDisk("/evidence/disk.raw")
	disk.Size = 4096
	disk.RequestID = "abc"
	disk.Tags.Set("zone", "us-central1-f")
	disk.Tags.Set("case", "123")
	disk.setState(StateAttached, true)

	partition := NewDiskPartition("p1")
	partition.PathSpec = &processor.Partition{Location: "p1", Offset: 1024, Size: 2048, FSType: "ext4"}
	partition.Credentials = []processor.Credential{{Type: "password", Data: "secret"}}
	partition.SetParent(disk)

	container := NewDockerContainer("abc")
	container.ProcessedBy = []string{"FsstatJob"}
	container.SetParent(partition)

	decoded := assertRoundTrip(t, container)
	assert.IsType(t, &DockerContainer{}, decoded)
	assert.IsType(t, &RawDisk{}, decoded.Parent().Parent())
	assert.Equal(t, "/evidence/disk.raw:p1:abc", decoded.Name())
}

func TestCodec_RoundTrip_AllTypes(t *testing.T) {
	t.Parallel()

	cloudDisk := NewGoogleCloudDisk("project", "zone", "disk-1")
	embedded := NewGoogleCloudDiskRawEmbedded("images/disk.raw")
	embedded.SetParent(cloudDisk)
	compressed := NewCompressedDirectory("/dir.tar.gz")
	compressed.UncompressedDirectory = "/tmp/dir"
	report := NewFinalReport("# Report")
	report.Config = map[string]any{"key": "value"}

	for _, e := range []Evidence{
		NewEwfDisk("/disk.E01"),
		embedded,
		NewDirectory("/dir"),
		compressed,
		NewContainerdContainer("default", "abc"),
		NewRawMemory("/mem.raw", "Win10x64", "pslist", "netscan"),
		NewReportText("text"),
		report,
		NewTextFile("/file.txt"),
		NewBodyFile("/file.body", 10),
		NewPlasoFile("/file.plaso"),
		NewChromiumProfile("/profile", "Chrome", "json"),
		NewExportedFileArtifact("/file.evtx", "WindowsEventLogs"),
	} {
		t.Run(e.Type(), func(t *testing.T) {
			t.Parallel()
			assertRoundTrip(t, e)
		})
	}
}

func TestCodec_RoundTrip_Collection(t *testing.T) {
	t.Parallel()

	disk := NewRawDisk("/disk.raw")
	partition := NewDiskPartition("p2")
	partition.SetParent(disk)
	collection := NewEvidenceCollection(NewTextFile("/a.txt"), partition, NewTextFile("/a.txt"))

	decoded := assertRoundTrip(t, collection)
	assert.Len(t, decoded.(*EvidenceCollection).Collection, 3)
}

func TestCodec_Encode_WireFormat(t *testing.T) {
	t.Parallel()

	disk := NewRawDisk("/disk.raw")
	partition := NewDiskPartition("p1")
	partition.SetParent(disk)

	data, err := Encode(partition)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Decode(data, &m))
	assert.Equal(t, "DiskPartition", m["type"])
	assert.Equal(t, false, m["has_child_evidence"])
	assert.Equal(t, "p1", m["partition_location"])
	assert.Equal(t, true, m["context_dependent"])
	assert.Equal(t, map[string]any{"MOUNTED": false, "ATTACHED": false, "DECOMPRESSED": false, "CONTAINER_MOUNTED": false}, m["state"])

	parent, ok := m["parent_evidence"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "RawDisk", parent["type"])
	assert.Equal(t, true, parent["has_child_evidence"])
	assert.Equal(t, "/disk.raw", parent["source_path"])
}

func TestCodec_Decode_NormalizesState(t *testing.T) {
	t.Parallel()

	e, err := Decode([]byte(`{"type":"rawdisk","source_path":"/disk.raw","state":{"ATTACHED":true,"MOUNTED":true,"FOO":true}}`))
	require.NoError(t, err)
	assert.Equal(t, "[MOUNTED: false, ATTACHED: true, DECOMPRESSED: false, CONTAINER_MOUNTED: false]", e.Common().FormatState())
}

func TestCodec_Decode_Errors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		input string
		error string
	}{
		{name: "not an object", input: `[1, 2]`, error: "cannot decode evidence: "},
		{name: "missing type", input: `{"source_path": "/disk.raw"}`, error: `cannot decode evidence: missing "type" discriminator`},
		{name: "unknown type", input: `{"type": "FloppyDisk"}`, error: `cannot decode evidence "FloppyDisk": unknown evidence type`},
		{name: "bad shape", input: `{"type": "RawDisk", "size": "big"}`, error: `cannot decode evidence "RawDisk": `},
		{name: "bad parent", input: `{"type": "DiskPartition", "parent_evidence": {"type": "Unknown"}}`, error: `cannot decode evidence "Unknown": unknown evidence type`},
		{name: "bad collection item", input: `{"type": "EvidenceCollection", "collection": [{"type": "RawDisk"}, {"type": "Unknown"}]}`, error: `cannot decode evidence "Unknown": unknown evidence type`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := Decode([]byte(tc.input))
			require.Error(t, err)
			var decodeErr DecodeError
			assert.True(t, errors.As(err, &decodeErr))
			assert.Contains(t, err.Error(), tc.error)
		})
	}
}

func TestErrors_ZeroValue(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "cannot decode evidence", DecodeError{}.Error())
	assert.Equal(t, `cannot decode evidence "RawDisk"`, DecodeError{Type: "RawDisk"}.Error())
	assert.Equal(t, `evidence "RawDisk" is not valid`, ValidationError{Evidence: "RawDisk"}.Error())
}

func TestWire(t *testing.T) {
	t.Parallel()

	type envelope struct {
		Evidence Wire `json:"evidence"`
	}

	data, err := json.Encode(envelope{Evidence: Wire{Evidence: NewTextFile("/a.txt")}}, false)
	require.NoError(t, err)

	var decoded envelope
	require.NoError(t, json.Decode(data, &decoded))
	assert.IsType(t, &TextFile{}, decoded.Evidence.Evidence)
	assert.Equal(t, "/a.txt", decoded.Evidence.Name())
}

func TestTypes(t *testing.T) {
	t.Parallel()

	assert.Len(t, Types(), 18)
	assert.True(t, IsType("googleclouddisk"))
	assert.False(t, IsType("FloppyDisk"))
}
