// Package schemas embeds the report schemas the sink ships with. Deployments
// may point the validation gate at S3 or blob storage instead.
package schemas

import "embed"

//go:embed *.schema.json
var FS embed.FS
