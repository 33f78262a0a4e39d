// Package registry talks to container registries over the
// Docker Registry HTTP API v2.
//
// An Authenticator maps registry hosts to authentication
// strategies (static bearer token, anonymous or basic-auth
// token exchange). The Client lists a repository's tags and
// fetches the config digest of a tagged manifest, attaching
// the Authorization header of the resolved Credential.
//
// Typical use:
//
//	ref, _ := registry.ParseReference("ghcr.io/org/app")
//	cred, _ := auth.ResolveCredential(ctx, ref)
//	base, _ := auth.Endpoint(ref)
//	tags, _ := client.ListTags(ctx, base, cred)
//	dgst, _ := client.FetchConfigDigest(ctx, base, "1.3.0", cred)
package registry
