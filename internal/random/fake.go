package random

// FailingFiller implements Filler for testing
// Succeeds for the first After calls, then fails every call
type FailingFiller struct {
	After int
	Calls int
}

func (f *FailingFiller) Fill(buf []byte) error {
	f.Calls++
	if f.Calls > f.After {
		return ErrSourceUnavailable
	}
	return CryptoFiller{}.Fill(buf)
}

// SequenceFiller implements Filler for testing
// Fills each call's buffer with the next byte from Values, repeating the last one
type SequenceFiller struct {
	Values []byte
	next   int
}

func (s *SequenceFiller) Fill(buf []byte) error {
	if len(s.Values) == 0 {
		return ErrSourceUnavailable
	}
	v := s.Values[len(s.Values)-1]
	if s.next < len(s.Values) {
		v = s.Values[s.next]
		s.next++
	}
	for i := range buf {
		buf[i] = v
	}
	return nil
}
