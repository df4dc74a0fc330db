package parser

import "bytes"

// Framer 把任意切分的输出块重组为完整的行。
// 只有以换行结尾的内容才会被返回，末尾不完整的片段保留到下一次 Push。
type Framer struct {
	buf []byte
}

// Push appends chunk and returns every complete line, without the trailing "\n" or "\r\n".
func (f *Framer) Push(chunk []byte) []string {
	f.buf = append(f.buf, chunk...)

	var lines []string
	start := 0
	for {
		i := bytes.IndexByte(f.buf[start:], '\n')
		if i < 0 {
			break
		}
		line := f.buf[start : start+i]
		lines = append(lines, string(bytes.TrimSuffix(line, []byte{'\r'})))
		start += i + 1
	}

	if start > 0 {
		// 片段移到缓冲区头部，避免底层数组无限增长
		n := copy(f.buf, f.buf[start:])
		f.buf = f.buf[:n]
	}
	return lines
}

// Flush returns the held fragment at end of stream and resets the framer.
func (f *Framer) Flush() (string, bool) {
	if len(f.buf) == 0 {
		return "", false
	}
	line := string(bytes.TrimSuffix(f.buf, []byte{'\r'}))
	f.buf = f.buf[:0]
	return line, true
}

// Pending returns the size of the held fragment.
func (f *Framer) Pending() int {
	return len(f.buf)
}
