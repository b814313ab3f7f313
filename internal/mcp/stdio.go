package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

const defaultMaxMessageSize = 10 << 20

var errMessageTooLarge = errors.New("message exceeds size limit")

// Serve runs the stdio transport: one JSON-RPC message per line on r, one
// response per line on w. It returns when r is exhausted or ctx is done.
// Messages are handled strictly in arrival order. An oversized line is
// answered with an error and skipped.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	in := bufio.NewReader(r)
	out := bufio.NewWriter(w)

	write := func(resp []byte) error {
		if _, err := out.Write(append(resp, '\n')); err != nil {
			return fmt.Errorf("failed to write response: %w", err)
		}
		if err := out.Flush(); err != nil {
			return fmt.Errorf("failed to flush response: %w", err)
		}
		return nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		line, readErr := readLine(in, s.maxMessageSize)
		if errors.Is(readErr, errMessageTooLarge) {
			s.logger.Printf("dropped request larger than %d bytes", s.maxMessageSize)
			resp, err := json.Marshal(rpcError(nil, ErrCodeInvalidRequest,
				fmt.Sprintf("Request exceeds %d bytes", s.maxMessageSize)))
			if err != nil {
				return err
			}
			if err := write(resp); err != nil {
				return err
			}
			continue
		}

		if line = bytes.TrimSpace(line); len(line) > 0 {
			resp, err := s.HandleMessage(ctx, line)
			if err != nil {
				s.logger.Printf("failed to handle message: %v", err)
			} else if resp != nil {
				if err := write(resp); err != nil {
					return err
				}
			}
		}

		if errors.Is(readErr, io.EOF) {
			return nil
		}
		if readErr != nil {
			return fmt.Errorf("failed to read request: %w", readErr)
		}
	}
}

// readLine returns the next line without its size exceeding limit. An
// oversized line is consumed through its newline and reported as
// errMessageTooLarge. The final line may come with io.EOF.
func readLine(in *bufio.Reader, limit int) ([]byte, error) {
	var line []byte
	for {
		chunk, err := in.ReadSlice('\n')
		if len(line)+len(chunk) > limit {
			for errors.Is(err, bufio.ErrBufferFull) {
				_, err = in.ReadSlice('\n')
			}
			if err != nil && !errors.Is(err, io.EOF) {
				return nil, err
			}
			return nil, errMessageTooLarge
		}
		line = append(line, chunk...)
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return line, err
	}
}
