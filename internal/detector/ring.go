package detector

// Ring - кольцевой буфер фиксированной емкости для сэмплов сенсора.
// При переполнении самый старый сэмпл вытесняется (FIFO).
type Ring struct {
	data []Sample
	pos  int
	full bool
	cap  int
}

// NewRing создает буфер заданной емкости
func NewRing(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{
		data: make([]Sample, capacity),
		cap:  capacity,
	}
}

// Append добавляет сэмпл в буфер, вытесняя самый старый при переполнении
func (r *Ring) Append(s Sample) {
	r.data[r.pos] = s
	r.pos++
	if r.pos >= r.cap {
		r.pos = 0
		r.full = true
	}
}

// Len возвращает текущее количество сэмплов в буфере
func (r *Ring) Len() int {
	if r.full {
		return r.cap
	}
	return r.pos
}

// Slice возвращает содержимое буфера в порядке поступления
func (r *Ring) Slice() []Sample {
	n := r.Len()
	out := make([]Sample, n)
	if r.full {
		copy(out, r.data[r.pos:])
		copy(out[r.cap-r.pos:], r.data[:r.pos])
	} else {
		copy(out, r.data[:r.pos])
	}
	return out
}

// Recent возвращает последние k сэмплов в хронологическом порядке.
// Если в буфере меньше k сэмплов, возвращает все что есть.
func (r *Ring) Recent(k int) []Sample {
	if k <= 0 {
		return nil
	}
	all := r.Slice()
	if len(all) <= k {
		return all
	}
	return all[len(all)-k:]
}

// Reset очищает буфер
func (r *Ring) Reset() {
	r.pos = 0
	r.full = false
}
