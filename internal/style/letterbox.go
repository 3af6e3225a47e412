package style

// Box describes how a source frame maps into the model's square working
// resolution: the source scales to FitW x FitH preserving aspect ratio,
// then pads out to the square with replicated edges. After inference the
// padding is cropped away and the content scales back to the source size,
// so framing is preserved at the cost of slightly lower effective
// resolution on the long edge (letterbox policy; chosen over center-crop
// to keep the full composition).
type Box struct {
	FitW, FitH int
	PadLeft    int
	PadRight   int
	PadTop     int
	PadBottom  int
}

// Letterbox computes the fit-and-pad geometry for a source of w x h into a
// square of the given size.
func Letterbox(w, h, size int) Box {
	fitW, fitH := size, size
	if w > h {
		fitH = h * size / w
		if fitH < 1 {
			fitH = 1
		}
	} else if h > w {
		fitW = w * size / h
		if fitW < 1 {
			fitW = 1
		}
	}
	padX := size - fitW
	padY := size - fitH
	return Box{
		FitW:      fitW,
		FitH:      fitH,
		PadLeft:   padX / 2,
		PadRight:  padX - padX/2,
		PadTop:    padY / 2,
		PadBottom: padY - padY/2,
	}
}
