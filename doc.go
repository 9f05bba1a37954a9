// Package seedkeep manages the local lifecycle of content-addressed media
// claims downloaded from a distributed content network.
//
// A claim is a named, identified content record. Its data lives in two
// independent filesystem trees: a flat blob store (one file per
// content-addressed chunk) and a media directory (one reconstructed file per
// claim, optionally namespaced by channel). The first blob of a claim, the
// manifest, enumerates the hashes of the remaining data blobs.
//
// The root package holds the domain model shared by the components under
// internal/:
//
//   - internal/inventory  scans the flat blob store
//   - internal/index      the catalog of known claims
//   - internal/channel    resolves channel identities under bounded concurrency
//   - internal/integrity  classifies claim completeness against the inventory
//   - internal/repair     re-fetches missing blobs and reconstructs media
//   - internal/retention  the space-budget eviction policy
//   - internal/daemon     the JSON-RPC boundary to the network daemon
//
// Basic usage:
//
//	client := daemon.New("http://localhost:5279")
//	inv, _ := inventory.Scan(blobDir)
//
//	idx := index.New(client)
//	idx.LoadLocal(ctx)
//
//	an := integrity.NewAnalyzer(inv)
//	for claim := range idx.All() {
//	    res := an.Analyze(claim)
//	    fmt.Println(claim.ID, res.State)
//	}
package seedkeep
