package lorawan

import "errors"

func errorIsMalformed(err error) bool {
	return errors.Is(err, ErrMalformedPacket)
}
