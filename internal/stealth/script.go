package stealth

import (
	"encoding/json"
	"fmt"
)

// OverrideScript returns the JavaScript evaluated before any page script to
// mask automation signals for p.
func OverrideScript(p Profile) string {
	langs, _ := json.Marshal(p.Languages)
	platform, _ := json.Marshal(p.Platform)
	plugins := p.PluginCount
	if plugins <= 0 {
		plugins = 5
	}
	return fmt.Sprintf(`(() => {
  const define = (obj, prop, value) => {
    try { Object.defineProperty(obj, prop, { get: () => value, configurable: true }); } catch (e) {}
  };
  define(Navigator.prototype, 'webdriver', undefined);
  define(Navigator.prototype, 'languages', Object.freeze(%s));
  define(Navigator.prototype, 'platform', %s);
  define(Navigator.prototype, 'plugins', Array.from({ length: %d }, (_, i) => ({ name: 'Plugin ' + i, filename: 'plugin' + i + '.so' })));
  if (!window.chrome) { window.chrome = { runtime: {}, app: { isInstalled: false } }; }
  const query = window.navigator.permissions && window.navigator.permissions.query;
  if (query) {
    window.navigator.permissions.query = (params) => params && params.name === 'notifications'
      ? Promise.resolve({ state: Notification.permission })
      : query.call(window.navigator.permissions, params);
  }
})();`, langs, platform, plugins)
}
