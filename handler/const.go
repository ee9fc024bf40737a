package handler

const (
	headerContentType = "Content-Type"

	contentTypeXml  = "text/xml;charset=utf-8"
	contentTypeJson = "application/json"

	upstreamErrorBody = "Plex not respond in time, proxy request fails"
)

// Literal body substitutions applied by the patching proxy, in order. Each
// replaces the first occurrence only, like the String.replace the Plex web
// client was built against.
var bodyPatches = [][2]string{
	{"streamingBrainABRVersion=", "DISABLEDstreamingBrainABRVersion="},
	{`allowSync="1"`, `allowSync="0"`},
	{`sync="1"`, `DISABLEDsync="1"`},
	{`allowTuners="0"`, `DISABLEDallowTuners="0"`},
	{`backgroundProcessing="1"`, `DISABLEDbackgroundProcessing="1"`},
}
