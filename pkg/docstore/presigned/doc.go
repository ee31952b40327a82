// Package presigned issues and validates HMAC-signed download URLs for
// backends that cannot sign URLs themselves.
//
// A Signer signs the payload METHOD|PATH|EXPIRES with HMAC-SHA256 and
// appends signature and expires query parameters:
//
//	signer := presigned.New(
//	    presigned.WithSecretKey(secret),
//	    presigned.WithURLPattern("/files/word-documents/{key}"),
//	    presigned.WithBaseURL("https://docs.example.com"),
//	)
//	url, err := signer.SignURL("GET", "/files/word-documents/report.docx", time.Hour)
//
// Signer.ObjectSigner adapts a Signer to docstore.URLSigner so a Store can
// fall back to it. The Download handler serves signed URLs from a Store:
//
//	r.With(presigned.RequireSignature(signer)).
//	    Handle("/files/word-documents/*", presigned.Download(store))
//
// Without a secret key nothing is signed and every request is rejected.
package presigned
