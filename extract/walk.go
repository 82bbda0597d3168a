package extract

import (
	"strings"

	"github.com/mjl-/mex/mlog"
)

// walk splits body on the "--boundary" delimiter and hands each candidate
// segment to classifyPart. The first segment is the document preamble and is
// discarded, as are empty segments and the "--" left over from the
// terminating "--boundary--" delimiter. Parts that are themselves multipart
// come back here through classifyPart with depth+1.
func (x *extractor) walk(body, bound string, depth int) {
	if depth > MaxDepth {
		x.diag.DepthExceeded++
		x.log.Debug("multipart nesting exceeds depth bound, skipping branch", mlog.Field("depth", depth), mlog.Field("maxdepth", MaxDepth))
		return
	}

	segs := strings.Split(body, "--"+bound)
	for _, seg := range segs[1:] {
		if s := strings.Trim(seg, " \t\r\n"); s == "" || s == "--" {
			continue
		}
		x.classifyPart(seg, depth)
	}
}
