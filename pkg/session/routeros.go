/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-routeros/routeros/v3"
	"github.com/go-routeros/routeros/v3/proto"

	"github.com/carverauto/routermon/pkg/logger"
)

type apiRunner interface {
	Run(sentence ...string) (*routeros.Reply, error)
}

type apiDialFunc func(address, username, password string, timeout time.Duration) (apiRunner, func(), error)

func dialRouterOS(address, username, password string, timeout time.Duration) (apiRunner, func(), error) {
	c, err := routeros.DialTimeout(address, username, password, timeout)
	if err != nil {
		return nil, nil, err
	}

	return c, func() { c.Close() }, nil
}

// RouterOSClient opens sessions over the RouterOS API protocol.
type RouterOSClient struct {
	dial   apiDialFunc
	logger logger.Logger
}

var _ Client = (*RouterOSClient)(nil)

// NewRouterOSClient returns a client dialing the plain-text API port.
func NewRouterOSClient(log logger.Logger) *RouterOSClient {
	return &RouterOSClient{
		dial:   dialRouterOS,
		logger: log,
	}
}

// Open dials the device and logs in. The dial is abandoned when ctx ends.
func (c *RouterOSClient) Open(ctx context.Context, target Target) (Session, error) {
	type dialResult struct {
		conn  apiRunner
		close func()
		err   error
	}

	done := make(chan dialResult, 1)

	go func() {
		conn, closeFn, err := c.dial(target.Address(), target.Username, target.Password, target.timeout())
		done <- dialResult{conn: conn, close: closeFn, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return nil, fmt.Errorf("dial %s: %w", target.Address(), res.err)
		}

		c.logger.Debug().Str("address", target.Address()).Msg("RouterOS API session opened")

		return &routerOSSession{conn: res.conn, close: res.close}, nil
	case <-ctx.Done():
		go func() {
			if res := <-done; res.err == nil {
				res.close()
			}
		}()

		return nil, fmt.Errorf("dial %s: %w", target.Address(), ctx.Err())
	}
}

type routerOSSession struct {
	mu     sync.Mutex
	conn   apiRunner
	close  func()
	closed bool
}

// Query runs one API command. A cancelled ctx closes the session since the
// underlying connection cannot abandon an outstanding reply.
func (s *routerOSSession) Query(ctx context.Context, command string, params ...string) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrSessionClosed
	}

	sentence := append([]string{command}, params...)

	type runResult struct {
		reply *routeros.Reply
		err   error
	}

	done := make(chan runResult, 1)

	go func() {
		reply, err := s.conn.Run(sentence...)
		done <- runResult{reply: reply, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return nil, fmt.Errorf("%s: %w", command, res.err)
		}

		return toRecords(res.reply), nil
	case <-ctx.Done():
		s.closed = true
		s.close()

		return nil, fmt.Errorf("%s: %w", command, ctx.Err())
	}
}

func (s *routerOSSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	s.close()

	return nil
}

func toRecords(reply *routeros.Reply) []Record {
	if reply == nil {
		return nil
	}

	out := make([]Record, 0, len(reply.Re))
	for _, re := range reply.Re {
		out = append(out, sentenceRecord(re))
	}

	return out
}

func sentenceRecord(s *proto.Sentence) Record {
	r := make(Record, 0, len(s.List))
	for _, p := range s.List {
		r = append(r, Pair{Key: p.Key, Value: p.Value})
	}

	return r
}
