package stream

import (
	"fmt"
	"io"
	"iter"
	"net/http"

	"github.com/kozaktomas/attendance-kiosk/internal/constants"
)

// ContentType is the response content type of an MJPEG feed.
const ContentType = "multipart/x-mixed-replace; boundary=" + constants.MJPEGBoundary

// WriteMJPEG writes each frame as one multipart part and flushes it. It
// returns when the sequence ends or a write fails (viewer gone).
func WriteMJPEG(w io.Writer, frames iter.Seq[[]byte]) error {
	flusher, _ := w.(http.Flusher)
	for frame := range frames {
		if _, err := fmt.Fprintf(w, "--%s\r\nContent-Type: image/jpeg\r\n\r\n", constants.MJPEGBoundary); err != nil {
			return err
		}
		if _, err := w.Write(frame); err != nil {
			return err
		}
		if _, err := io.WriteString(w, "\r\n"); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
	return nil
}
