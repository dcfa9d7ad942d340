package media

import "fmt"

// ---------------------------------------------------------------------------
// Animation effects. Each image in a slideshow gets one pan/zoom motion.
// Assignment is index mod len(Effects): deterministic and reproducible for
// a given image ordering, with enough rotation for visual variety.
// ---------------------------------------------------------------------------

// Effect identifies the pan/zoom motion applied to a still image.
type Effect string

const (
	EffectZoomIn   Effect = "zoom_in"   // scale 1.0 -> 1.1 centered
	EffectZoomOut  Effect = "zoom_out"  // scale 1.1 -> 1.0 centered
	EffectPanRight Effect = "pan_right" // fixed 1.1 zoom, crop window drifts left to right
	EffectPanLeft  Effect = "pan_left"  // fixed 1.1 zoom, crop window drifts right to left
)

// Effects is the rotation order for slideshow images.
var Effects = []Effect{
	EffectZoomIn,
	EffectZoomOut,
	EffectPanRight,
	EffectPanLeft,
}

// EffectFor returns the effect for the image at the given zero-based index.
func EffectFor(imageIndex int) Effect {
	return Effects[imageIndex%len(Effects)]
}

// zoompanFilter builds the zoompan expression for an effect. Every effect
// is parameterized only by the clip's frame count and the output canvas, so
// two runs over the same images produce identical filters.
func zoompanFilter(effect Effect, frames, width, height, fps int) string {
	center := "x='iw/2-(iw/zoom/2)':y='ih/2-(ih/zoom/2)'"

	switch effect {
	case EffectZoomIn:
		return fmt.Sprintf("zoompan=z='lerp(1,1.1,on/%d)':d=%d:%s:s=%dx%d:fps=%d",
			frames, frames, center, width, height, fps)
	case EffectZoomOut:
		return fmt.Sprintf("zoompan=z='lerp(1.1,1,on/%d)':d=%d:%s:s=%dx%d:fps=%d",
			frames, frames, center, width, height, fps)
	case EffectPanRight:
		return fmt.Sprintf("zoompan=z=1.1:d=%d:x='(iw-iw/zoom)*on/%d':y='(ih-ih/zoom)/2':s=%dx%d:fps=%d",
			frames, frames, width, height, fps)
	case EffectPanLeft:
		return fmt.Sprintf("zoompan=z=1.1:d=%d:x='(iw-iw/zoom)*(1-on/%d)':y='(ih-ih/zoom)/2':s=%dx%d:fps=%d",
			frames, frames, width, height, fps)
	default:
		// Unknown effects fall back to a centered zoom in.
		return fmt.Sprintf("zoompan=z='lerp(1,1.1,on/%d)':d=%d:%s:s=%dx%d:fps=%d",
			frames, frames, center, width, height, fps)
	}
}

// prescaleFilter fits an arbitrary source image onto the canvas: scale the
// short side to fill, crop to exactly canvas geometry, then upscale for
// zoompan headroom so sub-pixel motion stays smooth.
func prescaleFilter(width, height int) string {
	return fmt.Sprintf(
		"scale=w='if(gt(a,%d/%d),-1,%d)':h='if(gt(a,%d/%d),%d,-1)',crop=%d:%d,scale=8000:-1",
		width, height, width,
		width, height, height,
		width, height,
	)
}
