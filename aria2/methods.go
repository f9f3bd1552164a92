package aria2

import (
	"context"
	"encoding/json"
)

// GlobalStat is the result of getGlobalStat. Numbers are decimal strings.
type GlobalStat struct {
	DownloadSpeed   string `json:"downloadSpeed"`
	UploadSpeed     string `json:"uploadSpeed"`
	NumActive       string `json:"numActive"`
	NumWaiting      string `json:"numWaiting"`
	NumStopped      string `json:"numStopped"`
	NumStoppedTotal string `json:"numStoppedTotal"`
}

// Version is the result of getVersion.
type Version struct {
	Version         string   `json:"version"`
	EnabledFeatures []string `json:"enabledFeatures"`
}

// URI is one element of getUris.
type URI struct {
	URI    string `json:"uri"`
	Status string `json:"status"`
}

func (c *Client) gid(ctx context.Context, method string, params ...any) (string, error) {
	var gid string
	err := c.CallInto(ctx, &gid, method, params...)
	return gid, err
}

func (c *Client) ok(ctx context.Context, method string, params ...any) error {
	_, err := c.Call(ctx, method, params...)
	return err
}

// AddUri adds a new download. uris must all point at the same resource.
// options and position are optional.
func (c *Client) AddUri(ctx context.Context, uris []string, options map[string]any, position *int) (string, error) {
	params := addOptionsAndPosition([]any{uris}, options, position)
	return c.gid(ctx, "addUri", params...)
}

// AddTorrent adds a BitTorrent download from a base64 encoded .torrent file.
func (c *Client) AddTorrent(ctx context.Context, torrent string, uris []string, options map[string]any, position *int) (string, error) {
	params := []any{torrent}
	if uris != nil || options != nil || position != nil {
		if uris == nil {
			uris = []string{}
		}
		params = append(params, uris)
	}
	params = addOptionsAndPosition(params, options, position)
	return c.gid(ctx, "addTorrent", params...)
}

// AddMetalink adds downloads from a base64 encoded metalink file and returns their gids.
func (c *Client) AddMetalink(ctx context.Context, metalink string, options map[string]any, position *int) ([]string, error) {
	var gids []string
	params := addOptionsAndPosition([]any{metalink}, options, position)
	err := c.CallInto(ctx, &gids, "addMetalink", params...)
	return gids, err
}

// Remove stops an active download or drops a waiting/paused one.
func (c *Client) Remove(ctx context.Context, gid string) (string, error) {
	return c.gid(ctx, "remove", gid)
}

// ForceRemove is Remove without the slow cleanup (tracker unregister etc).
func (c *Client) ForceRemove(ctx context.Context, gid string) (string, error) {
	return c.gid(ctx, "forceRemove", gid)
}

func (c *Client) Pause(ctx context.Context, gid string) (string, error) {
	return c.gid(ctx, "pause", gid)
}

func (c *Client) PauseAll(ctx context.Context) error {
	return c.ok(ctx, "pauseAll")
}

func (c *Client) ForcePause(ctx context.Context, gid string) (string, error) {
	return c.gid(ctx, "forcePause", gid)
}

func (c *Client) ForcePauseAll(ctx context.Context) error {
	return c.ok(ctx, "forcePauseAll")
}

func (c *Client) Unpause(ctx context.Context, gid string) (string, error) {
	return c.gid(ctx, "unpause", gid)
}

func (c *Client) UnpauseAll(ctx context.Context) error {
	return c.ok(ctx, "unpauseAll")
}

// TellStatus returns one download. keys limits the returned fields.
func (c *Client) TellStatus(ctx context.Context, gid string, keys ...string) (Job, error) {
	var job Job
	err := c.CallInto(ctx, &job, "tellStatus", addKeys([]any{gid}, keys)...)
	return job, err
}

func (c *Client) GetUris(ctx context.Context, gid string) ([]URI, error) {
	var uris []URI
	err := c.CallInto(ctx, &uris, "getUris", gid)
	return uris, err
}

func (c *Client) GetFiles(ctx context.Context, gid string) ([]File, error) {
	var files []File
	err := c.CallInto(ctx, &files, "getFiles", gid)
	return files, err
}

func (c *Client) TellActive(ctx context.Context, keys ...string) ([]Job, error) {
	var jobs []Job
	err := c.CallInto(ctx, &jobs, "tellActive", addKeys(nil, keys)...)
	return jobs, err
}

// TellWaiting lists waiting and paused downloads. A negative offset counts
// from the end of the queue.
func (c *Client) TellWaiting(ctx context.Context, offset, num int, keys ...string) ([]Job, error) {
	var jobs []Job
	err := c.CallInto(ctx, &jobs, "tellWaiting", addKeys([]any{offset, num}, keys)...)
	return jobs, err
}

func (c *Client) TellStopped(ctx context.Context, offset, num int, keys ...string) ([]Job, error) {
	var jobs []Job
	err := c.CallInto(ctx, &jobs, "tellStopped", addKeys([]any{offset, num}, keys)...)
	return jobs, err
}

// ChangePosition moves a waiting download. how is POS_SET, POS_CUR or POS_END.
func (c *Client) ChangePosition(ctx context.Context, gid string, pos int, how string) (int, error) {
	var newPos int
	err := c.CallInto(ctx, &newPos, "changePosition", gid, pos, how)
	return newPos, err
}

func (c *Client) GetOption(ctx context.Context, gid string) (map[string]string, error) {
	var opts map[string]string
	err := c.CallInto(ctx, &opts, "getOption", gid)
	return opts, err
}

func (c *Client) ChangeOption(ctx context.Context, gid string, options map[string]any) error {
	return c.ok(ctx, "changeOption", gid, options)
}

func (c *Client) GetGlobalOption(ctx context.Context) (map[string]string, error) {
	var opts map[string]string
	err := c.CallInto(ctx, &opts, "getGlobalOption")
	return opts, err
}

func (c *Client) ChangeGlobalOption(ctx context.Context, options map[string]any) error {
	return c.ok(ctx, "changeGlobalOption", options)
}

func (c *Client) GetGlobalStat(ctx context.Context) (GlobalStat, error) {
	var stat GlobalStat
	err := c.CallInto(ctx, &stat, "getGlobalStat")
	return stat, err
}

// PurgeDownloadResult drops completed, errored and removed downloads from memory.
func (c *Client) PurgeDownloadResult(ctx context.Context) error {
	return c.ok(ctx, "purgeDownloadResult")
}

func (c *Client) RemoveDownloadResult(ctx context.Context, gid string) error {
	return c.ok(ctx, "removeDownloadResult", gid)
}

func (c *Client) GetVersion(ctx context.Context) (Version, error) {
	var v Version
	err := c.CallInto(ctx, &v, "getVersion")
	return v, err
}

func (c *Client) GetSessionInfo(ctx context.Context) (string, error) {
	var info struct {
		SessionID string `json:"sessionId"`
	}
	err := c.CallInto(ctx, &info, "getSessionInfo")
	return info.SessionID, err
}

func (c *Client) Shutdown(ctx context.Context) error {
	return c.ok(ctx, "shutdown")
}

func (c *Client) ForceShutdown(ctx context.Context) error {
	return c.ok(ctx, "forceShutdown")
}

func (c *Client) SaveSession(ctx context.Context) error {
	return c.ok(ctx, "saveSession")
}

// ListMethods returns the RPC methods the daemon supports, without the
// "aria2." prefix.
func (c *Client) ListMethods(ctx context.Context) ([]string, error) {
	return c.listNames(ctx, "system.listMethods")
}

// ListNotifications returns the notifications the daemon can push, without
// the "aria2." prefix.
func (c *Client) ListNotifications(ctx context.Context) ([]string, error) {
	return c.listNames(ctx, "system.listNotifications")
}

func (c *Client) listNames(ctx context.Context, method string) ([]string, error) {
	var names []string
	if err := c.CallInto(ctx, &names, method); err != nil {
		return nil, err
	}
	for i, n := range names {
		names[i] = stripPrefix(n)
	}
	return names, nil
}

// DecodeJobs unmarshals a tellActive/tellWaiting/tellStopped result.
func DecodeJobs(raw json.RawMessage) ([]Job, error) {
	var jobs []Job
	if err := json.Unmarshal(raw, &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}
