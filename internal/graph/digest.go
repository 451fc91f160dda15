package graph

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"golang.org/x/text/unicode/norm"
	"lukechampine.com/blake3"
)

// Digest returns a stable content hash of a serialized graph: BLAKE3 over
// its canonical JSON with define names in NFC. Map keys are sorted by
// encoding/json, so equal graphs hash equally regardless of extra-map order.
func Digest(s Serialized) (string, error) {
	canon := Serialized{
		Nodes:       make([]SerializedNode, len(s.Nodes)),
		Connections: s.Connections,
	}
	for i, n := range s.Nodes {
		n.Define = norm.NFC.String(n.Define)
		canon.Nodes[i] = n
	}
	data, err := json.Marshal(canon)
	if err != nil {
		return "", fmt.Errorf("digest: %w", err)
	}
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
